// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds the per-call conversation state for MorningCoach.
//
// # Description
//
// A CallSession is created when the telephony provider first reports a call
// and lives until the call is finalized or cleaned up by a terminal status
// callback. It owns the ordered transcript, the decisions captured during
// the call, the day plan snapshot taken at call start, and the current
// conversation phase.
//
// Sessions are held by an explicitly constructed Store. There is no package
// level session map; callers inject the Store wherever it is needed.
//
// # Thread Safety
//
// CallSession fields are guarded by an internal mutex. Whole turns are
// serialized per call through Store.Do, so classification always runs on a
// Snapshot that no other goroutine can change underneath it.
package session

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrSessionEnded is returned when a mutation is attempted on a session
	// whose phase is already PhaseEnded. Callers treat it as a no-op.
	ErrSessionEnded = errors.New("session has ended")

	// ErrPlanAlreadySnapshotted is returned by SnapshotDayPlan when a plan
	// was already recorded for the call. The first snapshot is kept.
	ErrPlanAlreadySnapshotted = errors.New("day plan already snapshotted")

	// ErrUnknownCall is returned by Store lookups for call IDs that have no
	// live session.
	ErrUnknownCall = errors.New("unknown call")

	// ErrCallClosed is returned by Store.Open when the call ID was already
	// finalized and a late webhook tries to recreate it.
	ErrCallClosed = errors.New("call already closed")
)

// ConfigurationError reports an illegal value passed to a session setter.
//
// # Description
//
// Raised for programming or configuration mistakes, such as asking a
// session to move into a phase that does not exist. It is distinct from
// the sentinel errors above, which describe normal runtime conditions.
type ConfigurationError struct {
	Field string
	Value string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// =============================================================================
// Roles and Turn Kinds
// =============================================================================

// Role identifies the speaker of a Turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnKind categorises why a Turn was produced.
//
// # Description
//
// Tool turns are kept apart from conversation turns so that phase
// recomputation and commitment detection only look at real dialogue.
type TurnKind string

const (
	KindConversation TurnKind = "conversation"
	KindTool         TurnKind = "tool"
	KindLoopBreak    TurnKind = "loop_break"
	KindOpener       TurnKind = "opener"
	KindClosing      TurnKind = "closing"
	KindFallback     TurnKind = "fallback"
)

// Turn is one utterance in the call transcript. Turns are immutable once
// appended.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Kind      TurnKind  `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// =============================================================================
// Phase
// =============================================================================

// Phase is the coarse stage of a coaching conversation.
type Phase string

const (
	PhaseExploration    Phase = "exploration"
	PhasePrioritization Phase = "prioritization"
	PhaseCommitment     Phase = "commitment"
	PhaseWrapUp         Phase = "wrap_up"
	PhaseEnded          Phase = "ended"
)

// String returns the wire name of the phase.
func (p Phase) String() string {
	return string(p)
}

// IsTerminal reports whether no further turns may be appended.
func (p Phase) IsTerminal() bool {
	return p == PhaseEnded
}

// IsValid reports whether p is one of the known phases.
func (p Phase) IsValid() bool {
	for _, known := range AllPhases() {
		if p == known {
			return true
		}
	}
	return false
}

// AllPhases returns every phase in conversational order.
func AllPhases() []Phase {
	return []Phase{
		PhaseExploration,
		PhasePrioritization,
		PhaseCommitment,
		PhaseWrapUp,
		PhaseEnded,
	}
}

// =============================================================================
// Decisions
// =============================================================================

// DecisionSource records what produced a Decision.
type DecisionSource string

const (
	// SourceCommitment marks a decision captured from commitment language
	// in the caller's own words.
	SourceCommitment DecisionSource = "commitment"

	// SourceTool marks a decision recorded after a successful tool action.
	SourceTool DecisionSource = "tool"
)

// Decision is a commitment or completed action captured during the call.
type Decision struct {
	Text        string         `json:"text"`
	Source      DecisionSource `json:"source"`
	PhaseAtTime Phase          `json:"phase_at_time"`
	Timestamp   time.Time      `json:"timestamp"`
}

// =============================================================================
// Day Plan
// =============================================================================

// CalendarEvent is a single calendar entry in the day plan.
type CalendarEvent struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end,omitempty"`
}

// Task is a habit or to-do item in the day plan.
type Task struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Priority float64 `json:"priority"`
}

// DayPlan is the caller's calendar and task list fetched at call start.
type DayPlan struct {
	Events []CalendarEvent `json:"events"`
	Tasks  []Task          `json:"tasks"`
}

// Clone returns a deep copy of the plan.
func (p DayPlan) Clone() DayPlan {
	out := DayPlan{
		Events: make([]CalendarEvent, len(p.Events)),
		Tasks:  make([]Task, len(p.Tasks)),
	}
	for i, ev := range p.Events {
		if ev.End != nil {
			end := *ev.End
			ev.End = &end
		}
		out.Events[i] = ev
	}
	copy(out.Tasks, p.Tasks)
	return out
}

// IsEmpty reports whether the plan has neither events nor tasks.
func (p DayPlan) IsEmpty() bool {
	return len(p.Events) == 0 && len(p.Tasks) == 0
}

// Briefing is the read of the day and of recent calls taken when the call
// starts. Every field is already phrased for speech or for the prompt.
type Briefing struct {
	Priorities []string `json:"priority_items,omitempty"`
	Conflicts  []string `json:"time_conflicts,omitempty"`
	FreeSlots  []string `json:"free_slots,omitempty"`
	Energy     string   `json:"energy_assessment,omitempty"`
	Focus      string   `json:"focus_recommendation,omitempty"`

	// Recent is "Recent pattern: ... Last session: ..." or empty for a
	// first call.
	Recent string `json:"recent,omitempty"`

	// Source is "llm" when the model refined the priorities, else
	// "heuristic".
	Source string `json:"source,omitempty"`
}

// Clone returns a deep copy of the briefing.
func (b Briefing) Clone() Briefing {
	b.Priorities = append([]string(nil), b.Priorities...)
	b.Conflicts = append([]string(nil), b.Conflicts...)
	b.FreeSlots = append([]string(nil), b.FreeSlots...)
	return b
}

// IsEmpty reports whether nothing was learned.
func (b Briefing) IsEmpty() bool {
	return len(b.Priorities) == 0 && len(b.Conflicts) == 0 && len(b.FreeSlots) == 0 &&
		b.Energy == "" && b.Focus == "" && b.Recent == ""
}

// =============================================================================
// Session Type
// =============================================================================

// SessionType is the classification assigned to a call at finalization.
type SessionType string

const (
	SessionUnknown     SessionType = "unknown"
	SessionVoicemail   SessionType = "voicemail"
	SessionBrief       SessionType = "brief"
	SessionSubstantive SessionType = "substantive"
)
