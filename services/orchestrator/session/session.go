// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// CallSession
// =============================================================================

// CallSession is the live state of one coaching call.
//
// # Description
//
// The phase moves through exploration, prioritization, commitment and
// wrap_up, not necessarily in that order, and reaches ended only through
// End. Once ended, every mutation is rejected with ErrSessionEnded.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Turn-level serialization is
// provided separately by Store.Do.
//
// # Assumptions
//
//   - Sessions are created through Store.Open, never directly.
type CallSession struct {
	mu sync.RWMutex

	callID       string
	from         string
	startTime    time.Time
	lastActivity time.Time
	phase        Phase
	transcript   Transcript
	decisions    []Decision
	dayPlan      DayPlan
	planSet      bool
	briefing     Briefing
	isVoicemail  bool
	silences     int
	endReason    string

	// turnLock is a one-slot semaphore so waiters can honour ctx.
	turnLock chan struct{}
	clock    func() time.Time
}

func newCallSession(callID, from string, clock func() time.Time) *CallSession {
	now := clock()
	return &CallSession{
		callID:       callID,
		from:         from,
		startTime:    now,
		lastActivity: now,
		phase:        PhaseExploration,
		turnLock:     make(chan struct{}, 1),
		clock:        clock,
	}
}

// CallID returns the telephony call identifier.
func (s *CallSession) CallID() string {
	return s.callID
}

// Phase returns the current phase.
func (s *CallSession) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// IsEnded reports whether the session reached PhaseEnded.
func (s *CallSession) IsEnded() bool {
	return s.Phase().IsTerminal()
}

// LastActivity returns the time of the most recent mutation.
func (s *CallSession) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// AppendTurn appends a turn to the transcript.
//
// # Description
//
// Empty text is ignored. When the session has already ended the turn is
// dropped, a debug line is logged, and ErrSessionEnded is returned so the
// caller can stop processing.
//
// # Inputs
//
//   - role: Speaker of the turn.
//   - text: Utterance text. Leading and trailing whitespace is trimmed.
//   - kind: Why the turn was produced.
//
// # Outputs
//
//   - error: ErrSessionEnded when the session is closed, nil otherwise.
func (s *CallSession) AppendTurn(role Role, text string, kind TurnKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(role, text, kind)
}

func (s *CallSession) appendLocked(role Role, text string, kind TurnKind) error {
	if s.phase.IsTerminal() {
		slog.Debug("Dropping turn for ended session", "call_sid", s.callID, "role", role)
		return ErrSessionEnded
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	now := s.clock()
	s.transcript.Append(Turn{Role: role, Text: text, Kind: kind, Timestamp: now})
	s.lastActivity = now
	if role == RoleUser {
		s.silences = 0
	}
	return nil
}

// RecordDecision stores a commitment or completed action.
//
// # Outputs
//
//   - error: ErrSessionEnded when the session is closed.
func (s *CallSession) RecordDecision(text string, source DecisionSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked(text, source)
}

func (s *CallSession) recordLocked(text string, source DecisionSource) error {
	if s.phase.IsTerminal() {
		return ErrSessionEnded
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	s.decisions = append(s.decisions, Decision{
		Text:        text,
		Source:      source,
		PhaseAtTime: s.phase,
		Timestamp:   s.clock(),
	})
	return nil
}

// SetPhase moves the session to phase.
//
// # Description
//
// Idempotent for the current phase. PhaseEnded cannot be set here; only End
// may close a session. Unknown phases are rejected with *ConfigurationError.
//
// # Outputs
//
//   - error: *ConfigurationError for an illegal phase, ErrSessionEnded when
//     the session is already closed.
func (s *CallSession) SetPhase(phase Phase) error {
	if !phase.IsValid() || phase.IsTerminal() {
		return &ConfigurationError{Field: "phase", Value: string(phase)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.IsTerminal() {
		return ErrSessionEnded
	}
	s.phase = phase
	return nil
}

// SnapshotDayPlan records the caller's plan for the day.
//
// # Description
//
// The plan is deep-copied. Only the first call wins; later calls leave the
// stored plan untouched, log a warning and return ErrPlanAlreadySnapshotted.
func (s *CallSession) SnapshotDayPlan(plan DayPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.planSet {
		slog.Warn("Day plan already snapshotted, keeping original", "call_sid", s.callID)
		return ErrPlanAlreadySnapshotted
	}
	s.dayPlan = plan.Clone()
	s.planSet = true
	return nil
}

// SetBriefing stores the call-start briefing. A later briefing replaces
// it; the handler sets one per call.
func (s *CallSession) SetBriefing(b Briefing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.IsTerminal() {
		return ErrSessionEnded
	}
	s.briefing = b.Clone()
	return nil
}

// MarkVoicemail flags the call as answered by a machine.
func (s *CallSession) MarkVoicemail() {
	s.mu.Lock()
	s.isVoicemail = true
	s.mu.Unlock()
}

// RecordSilence counts an empty speech result and returns the number of
// consecutive silences so far. A caller turn resets the count.
func (s *CallSession) RecordSilence() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silences++
	s.lastActivity = s.clock()
	return s.silences
}

// End closes the session.
//
// # Description
//
// Returns true only for the caller that actually performed the transition.
// Every later call is a silent no-op returning false, which is how duplicate
// end signals are coalesced into a single finalization.
//
// # Inputs
//
//   - reason: Short tag describing what ended the call.
func (s *CallSession) End(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.IsTerminal() {
		return false
	}
	s.phase = PhaseEnded
	s.endReason = reason
	s.lastActivity = s.clock()
	return true
}

// =============================================================================
// Turn Outcome
// =============================================================================

// Outcome is everything a processed caller turn changes on the session.
type Outcome struct {
	Reply     string
	ReplyKind TurnKind
	Decisions []PendingDecision

	// NextPhase is applied when non-empty and End is false.
	NextPhase Phase

	End       bool
	EndReason string
}

// PendingDecision is a decision produced by turn processing.
type PendingDecision struct {
	Text   string
	Source DecisionSource
}

// ApplyTurn applies an Outcome as a single mutation.
//
// # Description
//
// Appends the assistant reply, records decisions in the phase they were made,
// then either ends the session or moves it to NextPhase. Returns true when
// this call ended the session.
//
// # Outputs
//
//   - bool: True when the outcome closed the session.
//   - error: ErrSessionEnded if the session was already closed, or
//     *ConfigurationError for an illegal NextPhase.
func (s *CallSession) ApplyTurn(out Outcome) (bool, error) {
	if out.NextPhase != "" && (!out.NextPhase.IsValid() || out.NextPhase.IsTerminal()) {
		return false, &ConfigurationError{Field: "phase", Value: string(out.NextPhase)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase.IsTerminal() {
		return false, ErrSessionEnded
	}
	kind := out.ReplyKind
	if kind == "" {
		kind = KindConversation
	}
	if err := s.appendLocked(RoleAssistant, out.Reply, kind); err != nil {
		return false, err
	}
	for _, d := range out.Decisions {
		if err := s.recordLocked(d.Text, d.Source); err != nil {
			return false, err
		}
	}
	if out.End {
		s.phase = PhaseEnded
		s.endReason = out.EndReason
		return true, nil
	}
	if out.NextPhase != "" {
		s.phase = out.NextPhase
	}
	return false, nil
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is an immutable deep copy of a CallSession.
//
// # Description
//
// Every classifier and generator takes a Snapshot rather than the live
// session, so those functions stay pure and can run without holding locks.
type Snapshot struct {
	CallID      string
	From        string
	StartTime   time.Time
	Phase       Phase
	Transcript  Transcript
	Decisions   []Decision
	DayPlan     DayPlan
	HasDayPlan  bool
	Briefing    Briefing
	IsVoicemail bool
	EndReason   string
}

// Snapshot returns a deep copy of the current state.
func (s *CallSession) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	decisions := make([]Decision, len(s.decisions))
	copy(decisions, s.decisions)
	return Snapshot{
		CallID:      s.callID,
		From:        s.from,
		StartTime:   s.startTime,
		Phase:       s.phase,
		Transcript:  s.transcript.clone(),
		Decisions:   decisions,
		DayPlan:     s.dayPlan.Clone(),
		HasDayPlan:  s.planSet,
		Briefing:    s.briefing.Clone(),
		IsVoicemail: s.isVoicemail,
		EndReason:   s.endReason,
	}
}

// HasCommitments reports whether any decision was captured.
func (s Snapshot) HasCommitments() bool {
	return len(s.Decisions) > 0
}

// Duration returns the time between call start and the last turn.
func (s Snapshot) Duration() time.Duration {
	turns := s.Transcript.turns
	if len(turns) == 0 {
		return 0
	}
	return turns[len(turns)-1].Timestamp.Sub(s.StartTime)
}
