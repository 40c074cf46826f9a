// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package summary classifies and summarizes a finished call and hands the
// resulting records to durable sinks.
//
// Thread Safety:
//
//	All exported functions are pure except Finalizer.Finalize, which is
//	safe for concurrent use across different calls.
package summary

import (
	"context"
	"time"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

// =============================================================================
// Summary Types
// =============================================================================

// Outcome is the overall assessment of a session.
type Outcome string

const (
	OutcomeProductive Outcome = "productive"
	OutcomePlanning   Outcome = "planning"
	OutcomeAdjustment Outcome = "adjustment"
	OutcomeBrief      Outcome = "brief"
	OutcomeVoicemail  Outcome = "voicemail"
)

// IsValid reports whether o is a known outcome.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeProductive, OutcomePlanning, OutcomeAdjustment, OutcomeBrief, OutcomeVoicemail:
		return true
	}
	return false
}

// Source records how a summary was produced.
type Source string

const (
	SourceLLM       Source = "llm"
	SourceHeuristic Source = "heuristic"
)

// Commitment is a task the caller committed to and when.
type Commitment struct {
	Task      string `json:"task" yaml:"task"`
	Timeframe string `json:"timeframe" yaml:"timeframe"`
}

// Summary is the structured end-of-call artifact. It is built once and
// never modified.
type Summary struct {
	KeyDecisions []string     `json:"key_decisions" yaml:"key_decisions"`
	Commitments  []Commitment `json:"commitments" yaml:"commitments"`
	MoodEnergy   string       `json:"mood_energy" yaml:"mood_energy"`
	Outcome      Outcome      `json:"session_outcome" yaml:"session_outcome"`
	Source       Source       `json:"source" yaml:"source"`
}

// Insights is the check-in view of a session: what the caller focused on
// and how they sounded.
type Insights struct {
	Date       string   `json:"date" yaml:"date"`
	Priorities []string `json:"priorities" yaml:"priorities"`
	Mood       string   `json:"mood" yaml:"mood"`
	Energy     string   `json:"energy_level" yaml:"energy_level"`
	Notes      string   `json:"notes" yaml:"notes"`
}

// =============================================================================
// Records
// =============================================================================

// SessionRecord is the technical log of a real coaching conversation.
type SessionRecord struct {
	ID          string              `json:"id"`
	CallID      string              `json:"call_sid"`
	From        string              `json:"from,omitempty"`
	StartTime   time.Time           `json:"start_time"`
	EndTime     time.Time           `json:"end_time"`
	SessionType session.SessionType `json:"session_type"`
	EndReason   string              `json:"end_reason"`
	Turns       []session.Turn      `json:"turns"`
	Decisions   []session.Decision  `json:"decisions"`
	DayPlan     session.DayPlan     `json:"day_plan"`
	Summary     Summary             `json:"summary"`
	Insights    Insights            `json:"insights"`
}

// Duration returns the length of the call.
func (r SessionRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// MissedCallRecord marks a call that reached voicemail or an answering
// machine. It replaces the session record for those calls.
type MissedCallRecord struct {
	ID             string    `json:"id"`
	CallID         string    `json:"call_sid"`
	From           string    `json:"from,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	FirstUtterance string    `json:"first_utterance,omitempty"`
	Reason         string    `json:"reason"`
}

// Sink receives finalization records.
type Sink interface {
	AppendSession(ctx context.Context, rec SessionRecord) error
	AppendMissedCall(ctx context.Context, rec MissedCallRecord) error
}

// Result is what Finalize produced for one call.
type Result struct {
	RecordID    string
	SessionType session.SessionType
	Summary     Summary
	Insights    Insights
}
