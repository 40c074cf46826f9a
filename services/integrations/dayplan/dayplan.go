// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dayplan assembles today's calendar events and tasks for the
// opener and the session snapshot.
//
// # Fetching
//
// The calendar and every task source are fetched in parallel. A failing
// source contributes nothing; the others still count.
//
// # Caching
//
// Plans are cached per calendar day for MaxAge. Concurrent callers on a
// cache miss share a single fetch.
//
// # Thread Safety
//
// Safe for concurrent use. Uses sync.RWMutex for the cached plan and
// singleflight.Group for fetch deduplication.
package dayplan

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

// ErrUnavailable is returned when every source failed. The plan returned
// with it is empty but usable.
var ErrUnavailable = errors.New("dayplan: no source available")

// EventSource lists calendar events.
type EventSource interface {
	ListEventsForDay(ctx context.Context, day time.Time) ([]session.CalendarEvent, error)
}

// TaskSource lists today's open tasks.
type TaskSource interface {
	TodayTasks(ctx context.Context) ([]session.Task, error)
}

// Options configures a Provider.
type Options struct {
	// MaxAge is how long a fetched plan is reused.
	// Default: 5 minutes
	MaxAge time.Duration

	// FetchTimeout bounds one fetch across all sources.
	// Default: 5 seconds
	FetchTimeout time.Duration

	Clock    func() time.Time
	Location *time.Location
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAge:       5 * time.Minute,
		FetchTimeout: 5 * time.Second,
		Clock:        time.Now,
		Location:     time.Local,
	}
}

// Provider serves today's plan.
type Provider struct {
	events EventSource
	tasks  []TaskSource
	opts   Options

	mu        sync.RWMutex
	cached    session.DayPlan
	cachedDay string
	cachedAt  time.Time
	flight    singleflight.Group
}

// New creates a Provider. events may be nil; nil task sources are
// skipped.
func New(events EventSource, tasks []TaskSource, opts Options) *Provider {
	def := DefaultOptions()
	if opts.MaxAge <= 0 {
		opts.MaxAge = def.MaxAge
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	p := &Provider{events: events, opts: opts}
	for _, t := range tasks {
		if t != nil {
			p.tasks = append(p.tasks, t)
		}
	}
	return p
}

// TodayPlan returns today's events and tasks.
//
// Description:
//
//	Serves the cached plan when it is for today and younger than MaxAge.
//	Otherwise joins or starts the shared fetch. The fetch runs detached
//	from ctx so one caller hanging up does not cancel it for the rest;
//	ctx only bounds how long this caller waits.
//
// Inputs:
//
//	ctx - Bounds the wait.
//
// Outputs:
//
//	session.DayPlan - A copy the caller may keep.
//	error - ErrUnavailable when every source failed, or ctx's error.
func (p *Provider) TodayPlan(ctx context.Context) (session.DayPlan, error) {
	now := p.opts.Clock()
	day := now.In(p.opts.Location).Format("2006-01-02")

	p.mu.RLock()
	if p.cachedDay == day && now.Sub(p.cachedAt) < p.opts.MaxAge {
		plan := p.cached.Clone()
		p.mu.RUnlock()
		recordCacheLookup(ctx, true)
		return plan, nil
	}
	p.mu.RUnlock()
	recordCacheLookup(ctx, false)

	ch := p.flight.DoChan(day, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.FetchTimeout)
		defer cancel()
		plan, ok := p.fetch(fetchCtx, now)
		if !ok {
			return plan, ErrUnavailable
		}
		p.mu.Lock()
		p.cached, p.cachedDay, p.cachedAt = plan, day, now
		p.mu.Unlock()
		return plan, nil
	})

	select {
	case <-ctx.Done():
		return session.DayPlan{}, ctx.Err()
	case res := <-ch:
		plan, _ := res.Val.(session.DayPlan)
		return plan.Clone(), res.Err
	}
}

// Invalidate drops the cached plan, e.g. after the calendar was changed.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.cachedDay = ""
	p.mu.Unlock()
}

// fetch queries every source in parallel. ok is false when all of them
// failed.
func (p *Provider) fetch(ctx context.Context, now time.Time) (session.DayPlan, bool) {
	ctx, span := startFetchSpan(ctx, len(p.tasks), p.events != nil)
	defer span.End()
	start := time.Now()

	var (
		events    []session.CalendarEvent
		taskLists = make([][]session.Task, len(p.tasks))
		failures  = make([]bool, len(p.tasks)+1)
	)

	g, gctx := errgroup.WithContext(ctx)
	if p.events != nil {
		g.Go(func() error {
			evs, err := p.events.ListEventsForDay(gctx, now)
			if err != nil {
				slog.Warn("Calendar fetch failed", "error", err)
				recordSourceFailure(gctx, "calendar")
				failures[0] = true
				return nil
			}
			events = evs
			return nil
		})
	} else {
		failures[0] = true
	}
	for i, src := range p.tasks {
		g.Go(func() error {
			tasks, err := src.TodayTasks(gctx)
			if err != nil {
				slog.Warn("Task fetch failed", "source", i, "error", err)
				recordSourceFailure(gctx, "tasks")
				failures[i+1] = true
				return nil
			}
			taskLists[i] = tasks
			return nil
		})
	}
	_ = g.Wait()

	ok := false
	for _, failed := range failures {
		if !failed {
			ok = true
			break
		}
	}

	plan := session.DayPlan{Events: events, Tasks: mergeTasks(taskLists)}
	sort.SliceStable(plan.Events, func(a, b int) bool {
		return plan.Events[a].Start.Before(plan.Events[b].Start)
	})
	recordFetch(ctx, time.Since(start), ok)
	span.SetAttributes(
		attribute.Int("dayplan.events", len(plan.Events)),
		attribute.Int("dayplan.tasks", len(plan.Tasks)),
		attribute.Bool("dayplan.ok", ok))
	slog.Info("Fetched day plan", "events", len(plan.Events), "tasks", len(plan.Tasks))
	return plan, ok
}

// mergeTasks concatenates task lists, drops duplicate texts and orders by
// descending priority.
func mergeTasks(lists [][]session.Task) []session.Task {
	seen := map[string]bool{}
	var out []session.Task
	for _, list := range lists {
		for _, t := range list {
			key := strings.ToLower(strings.TrimSpace(t.Text))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Priority > out[b].Priority
	})
	return out
}
