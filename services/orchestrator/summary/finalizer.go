// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package summary

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/MorningCoach/services/llm"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

const (
	// DefaultExtractionTimeout bounds the structured summary LLM call.
	DefaultExtractionTimeout = 10 * time.Second

	// DefaultSinkTimeout bounds each durable write.
	DefaultSinkTimeout = 10 * time.Second

	missedReasonVoicemail = "voicemail"

	recordSession    = "session"
	recordMissedCall = "missed_call"
)

// Observer is told how each extraction attempt went.
type Observer func(source Source, latency time.Duration)

// SinkErrorObserver is told about every failed durable write. record is
// "session" or "missed_call".
type SinkErrorObserver func(record string, err error)

// FinalizerConfig configures a Finalizer.
type FinalizerConfig struct {
	ExtractionTimeout time.Duration
	SinkTimeout       time.Duration
	Clock             func() time.Time
	Observer          Observer
	OnSinkError       SinkErrorObserver
}

// Finalizer turns a finished call into durable records.
//
// Calling Finalize at most once per call is the caller's job; the turn
// handler coalesces duplicate end signals before reaching here.
type Finalizer struct {
	client llm.LLMClient
	sink   Sink
	cfg    FinalizerConfig
	tracer trace.Tracer
}

// NewFinalizer creates a Finalizer.
//
// Inputs:
//
//	client - LLM used for structured extraction. Nil always uses the heuristic.
//	sink - Durable destination. Nil discards records.
//	cfg - Timeouts and clock. Zero values use defaults.
//
// Outputs:
//
//	*Finalizer - Ready to use.
func NewFinalizer(client llm.LLMClient, sink Sink, cfg FinalizerConfig) *Finalizer {
	if cfg.ExtractionTimeout <= 0 {
		cfg.ExtractionTimeout = DefaultExtractionTimeout
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = DefaultSinkTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Finalizer{
		client: client,
		sink:   sink,
		cfg:    cfg,
		tracer: otel.Tracer("morningcoach.summary"),
	}
}

// Summarize produces the summary for a snapshot.
//
// Description:
//
//	Voicemail and brief sessions get the heuristic summary directly; there
//	is nothing for a model to extract. Substantive sessions try the LLM
//	extraction first and fall back to the heuristic on any error,
//	timeout or incomplete shape, so the result is never empty.
//
// Inputs:
//
//	ctx - Parent context.
//	snap - Final snapshot.
//	st - Session type from Classify.
//
// Outputs:
//
//	Summary - Always populated.
func (f *Finalizer) Summarize(ctx context.Context, snap session.Snapshot, st session.SessionType) Summary {
	if st != session.SessionSubstantive || f.client == nil {
		return Heuristic(snap, st)
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.ExtractionTimeout)
	defer cancel()

	start := time.Now()
	s, err := extract(ctx, f.client, snap)
	if err != nil {
		slog.Warn("Structured summary failed, using heuristic",
			"call_sid", snap.CallID, "error", err)
		s = Heuristic(snap, st)
	}
	if f.cfg.Observer != nil {
		f.cfg.Observer(s.Source, time.Since(start))
	}
	return s
}

// Finalize classifies, summarizes and records a finished call.
//
// Description:
//
//	Voicemail calls produce only a MissedCallRecord. Every other call
//	produces a SessionRecord carrying the transcript, decisions, day plan,
//	summary and insights. Sink errors are logged and never returned; the
//	caller has already hung up.
//
// Inputs:
//
//	ctx - Parent context. Finalization normally runs detached from the
//	      webhook request, so callers pass a background-derived context.
//	snap - Final snapshot of the call.
//
// Outputs:
//
//	Result - The record ID, type, summary and insights.
func (f *Finalizer) Finalize(ctx context.Context, snap session.Snapshot) Result {
	ctx, span := f.tracer.Start(ctx, "summary.Finalize",
		trace.WithAttributes(attribute.String("call_sid", snap.CallID)))
	defer span.End()

	end := f.cfg.Clock()
	st := Classify(snap)
	res := Result{
		RecordID:    uuid.New().String(),
		SessionType: st,
		Insights:    ExtractInsights(snap),
	}
	span.SetAttributes(attribute.String("session_type", string(st)))

	if st == session.SessionVoicemail {
		res.Summary = Heuristic(snap, st)
		rec := MissedCallRecord{
			ID:             res.RecordID,
			CallID:         snap.CallID,
			From:           snap.From,
			StartTime:      snap.StartTime,
			EndTime:        end,
			FirstUtterance: firstUserText(snap),
			Reason:         missedReasonVoicemail,
		}
		f.write(ctx, span, snap.CallID, recordMissedCall, func(ctx context.Context) error {
			return f.sink.AppendMissedCall(ctx, rec)
		})
		slog.Info("Call reached voicemail", "call_sid", snap.CallID, "record_id", res.RecordID)
		return res
	}

	res.Summary = f.Summarize(ctx, snap, st)
	rec := SessionRecord{
		ID:          res.RecordID,
		CallID:      snap.CallID,
		From:        snap.From,
		StartTime:   snap.StartTime,
		EndTime:     end,
		SessionType: st,
		EndReason:   snap.EndReason,
		Turns:       snap.Transcript.All(),
		Decisions:   snap.Decisions,
		DayPlan:     snap.DayPlan,
		Summary:     res.Summary,
		Insights:    res.Insights,
	}
	f.write(ctx, span, snap.CallID, recordSession, func(ctx context.Context) error {
		return f.sink.AppendSession(ctx, rec)
	})
	slog.Info("Session finalized",
		"call_sid", snap.CallID,
		"record_id", res.RecordID,
		"session_type", st,
		"outcome", res.Summary.Outcome,
		"summary_source", res.Summary.Source,
		"duration", rec.Duration())
	return res
}

func (f *Finalizer) write(ctx context.Context, span trace.Span, callID, record string, fn func(context.Context) error) {
	if f.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.SinkTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sink write failed")
		slog.Error("Writing session record failed", "call_sid", callID, "record", record, "error", err)
		if f.cfg.OnSinkError != nil {
			f.cfg.OnSinkError(record, err)
		}
	}
}

func firstUserText(snap session.Snapshot) string {
	users := snap.Transcript.ByRole(session.RoleUser)
	if len(users) == 0 {
		return ""
	}
	return users[0].Text
}
