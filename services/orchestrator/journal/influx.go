// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import (
	"context"
	"errors"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/summary"
)

// Measurements written by InfluxJournal.
const (
	SessionMeasurement = "coaching_sessions"
	MissedMeasurement  = "missed_calls"
)

// InfluxConfig locates the metrics bucket.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxJournal writes one point per finished call so call habits can be
// charted over time.
type InfluxJournal struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxJournal creates the journal. No connection is made until the
// first write.
func NewInfluxJournal(cfg InfluxConfig) (*InfluxJournal, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influxdb url, org and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxJournal{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// AppendSession implements summary.Sink.
func (j *InfluxJournal) AppendSession(ctx context.Context, rec summary.SessionRecord) error {
	users, tools := 0, 0
	for _, t := range rec.Turns {
		if t.Role == session.RoleUser {
			users++
		}
	}
	for _, d := range rec.Decisions {
		if d.Source == session.SourceTool {
			tools++
		}
	}

	p := influxdb2.NewPointWithMeasurement(SessionMeasurement).
		AddTag("session_type", string(rec.SessionType)).
		AddTag("outcome", string(rec.Summary.Outcome)).
		AddTag("summary_source", string(rec.Summary.Source)).
		AddTag("end_reason", rec.EndReason).
		AddTag("mood", rec.Insights.Mood).
		AddField("duration_seconds", rec.Duration().Seconds()).
		AddField("user_turns", users).
		AddField("decisions", len(rec.Decisions)).
		AddField("commitments", len(rec.Summary.Commitments)).
		AddField("tool_actions", tools).
		SetTime(rec.EndTime)

	return j.writeAPI.WritePoint(ctx, p)
}

// AppendMissedCall implements summary.Sink.
func (j *InfluxJournal) AppendMissedCall(ctx context.Context, rec summary.MissedCallRecord) error {
	p := influxdb2.NewPointWithMeasurement(MissedMeasurement).
		AddTag("reason", rec.Reason).
		AddField("count", 1).
		SetTime(rec.EndTime)
	return j.writeAPI.WritePoint(ctx, p)
}

// Close releases the client.
func (j *InfluxJournal) Close() error {
	j.client.Close()
	return nil
}
