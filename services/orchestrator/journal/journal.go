// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal provides the durable log sinks for coaching calls.
//
// Three kinds of records are written:
//   - TurnLogRecord: one per coach reply, the raw technical log
//   - summary.SessionRecord: one per finished conversation
//   - summary.MissedCallRecord: one per call that reached voicemail
//
// Storage tiers follow the rest of the service:
//
//	Local (BadgerDB) → Search (Weaviate) → Metrics (InfluxDB)
//
// Fanout writes to every configured sink and keeps going when one fails.
package journal

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/summary"
)

// TurnLogRecord is the technical log of one processed caller turn.
type TurnLogRecord struct {
	ID        string        `json:"id"`
	CallID    string        `json:"call_sid"`
	Index     int           `json:"index"`
	Utterance string        `json:"utterance"`
	Reply     string        `json:"reply"`
	ReplyKind string        `json:"reply_kind"`
	Phase     string        `json:"phase"`
	Action    string        `json:"tool_action,omitempty"`
	Ended     bool          `json:"ended"`
	EndReason string        `json:"end_reason,omitempty"`
	Latency   time.Duration `json:"latency_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// Journal is the full durable log contract used by the turn handler.
type Journal interface {
	summary.Sink
	AppendTurn(ctx context.Context, rec TurnLogRecord) error
	Close() error
}

// TurnAppender is implemented by sinks that keep the per-turn log.
type TurnAppender interface {
	AppendTurn(ctx context.Context, rec TurnLogRecord) error
}

// =============================================================================
// Fanout
// =============================================================================

// Fanout writes every record to all of its sinks.
//
// Sinks that do not implement TurnAppender are skipped for turn records.
// Sinks that implement io.Closer are closed by Close.
type Fanout struct {
	sinks []summary.Sink
}

// NewFanout creates a Fanout. Nil sinks are dropped.
func NewFanout(sinks ...summary.Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// AppendTurn implements Journal.
func (f *Fanout) AppendTurn(ctx context.Context, rec TurnLogRecord) error {
	var errs []error
	for _, s := range f.sinks {
		if ta, ok := s.(TurnAppender); ok {
			errs = append(errs, ta.AppendTurn(ctx, rec))
		}
	}
	return errors.Join(errs...)
}

// AppendSession implements summary.Sink.
func (f *Fanout) AppendSession(ctx context.Context, rec summary.SessionRecord) error {
	var errs []error
	for _, s := range f.sinks {
		errs = append(errs, s.AppendSession(ctx, rec))
	}
	return errors.Join(errs...)
}

// AppendMissedCall implements summary.Sink.
func (f *Fanout) AppendMissedCall(ctx context.Context, rec summary.MissedCallRecord) error {
	var errs []error
	for _, s := range f.sinks {
		errs = append(errs, s.AppendMissedCall(ctx, rec))
	}
	return errors.Join(errs...)
}

// Close closes every sink that can be closed.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) AppendTurn(context.Context, TurnLogRecord) error { return nil }
func (Nop) AppendSession(context.Context, summary.SessionRecord) error { return nil }
func (Nop) AppendMissedCall(context.Context, summary.MissedCallRecord) error { return nil }
func (Nop) Close() error { return nil }
