// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dayplan

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for day-plan fetches.
var (
	tracer = otel.Tracer("morningcoach.dayplan")
	meter  = otel.Meter("morningcoach.dayplan")
)

// Metrics for day-plan fetches.
var (
	fetchLatency   metric.Float64Histogram
	sourceFailures metric.Int64Counter
	cacheLookups   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		fetchLatency, err = meter.Float64Histogram(
			"dayplan_fetch_duration",
			metric.WithDescription("Duration of a full day-plan fetch across all sources"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		sourceFailures, err = meter.Int64Counter(
			"dayplan_source_failures",
			metric.WithDescription("Calendar or task source fetches that failed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheLookups, err = meter.Int64Counter(
			"dayplan_cache_lookups",
			metric.WithDescription("Day-plan requests by cache outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCacheLookup(ctx context.Context, hit bool) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

func recordSourceFailure(ctx context.Context, kind string) {
	if err := initMetrics(); err != nil {
		return
	}
	sourceFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("source", kind)))
}

func recordFetch(ctx context.Context, duration time.Duration, ok bool) {
	if err := initMetrics(); err != nil {
		return
	}
	fetchLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", ok)))
}

// startFetchSpan creates a span for one fetch across sources.
func startFetchSpan(ctx context.Context, taskSources int, hasCalendar bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "dayplan.Fetch",
		trace.WithAttributes(
			attribute.Int("dayplan.task_sources", taskSources),
			attribute.Bool("dayplan.calendar", hasCalendar),
		),
	)
}
