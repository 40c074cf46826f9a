// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/intent"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/journal"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/observability"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/responder"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/summary"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/tools"
)

// =============================================================================
// Collaborator Contracts
// =============================================================================

// DayPlanProvider supplies today's events and tasks for the opener.
type DayPlanProvider interface {
	TodayPlan(ctx context.Context) (session.DayPlan, error)
}

// Briefer reads the day and the caller's recent calls at call start.
type Briefer interface {
	Prepare(ctx context.Context, from string, plan session.DayPlan, now time.Time) session.Briefing
}

// ToolExecutor runs a classified tool intent.
type ToolExecutor interface {
	Execute(ctx context.Context, ti intent.ToolIntent) tools.Result
}

// Finalizer turns a finished call into durable records.
type Finalizer interface {
	Finalize(ctx context.Context, snap session.Snapshot) summary.Result
}

// =============================================================================
// Events and Responses
// =============================================================================

// CallEvent is the first webhook of a call.
type CallEvent struct {
	CallID     string
	From       string
	AnsweredBy string
	Direction  string
}

// SpeechEvent carries one speech recognition result. An empty Text is a
// silence.
type SpeechEvent struct {
	CallID     string
	From       string
	Text       string
	Confidence float64
}

// StatusEvent is a telephony call status callback.
type StatusEvent struct {
	CallID     string
	Status     string
	AnsweredBy string
}

// Response is what the caller hears next and whether the call continues.
type Response struct {
	Say    string
	Listen bool
	Hangup bool
}

// =============================================================================
// Configuration
// =============================================================================

const (
	// DefaultMaxSilences ends the call after this many consecutive empty
	// speech results.
	DefaultMaxSilences = 3

	// DefaultDayPlanTimeout bounds the day-plan fetch at call start.
	DefaultDayPlanTimeout = 5 * time.Second

	// DefaultToolTimeout bounds one tool execution.
	DefaultToolTimeout = 8 * time.Second

	// DefaultFinalizeTimeout bounds one whole finalization.
	DefaultFinalizeTimeout = 30 * time.Second

	defaultJournalTimeout = 2 * time.Second
)

// Call directions used as metric labels.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// machineAnsweredBy lists the AnsweredBy values reported for answering
// machines and fax lines.
var machineAnsweredBy = []string{"machine_start", "machine_end_beep", "machine_end_silence", "machine_end_other", "fax"}

// TurnConfig configures a TurnHandler.
type TurnConfig struct {
	MaxSilences     int
	DayPlanTimeout  time.Duration
	ToolTimeout     time.Duration
	FinalizeTimeout time.Duration
	JournalTimeout  time.Duration

	// Location is the caller's time zone for the opener greeting.
	Location *time.Location
	Clock    func() time.Time
}

// TurnDeps are the collaborators of a TurnHandler. Store, Classifier,
// Generator and Finalizer are required; the rest may be nil.
type TurnDeps struct {
	Store      *session.Store
	Classifier *intent.Classifier
	Generator  *responder.Generator
	Tools      ToolExecutor
	Finalizer  Finalizer
	DayPlans   DayPlanProvider
	Briefer    Briefer
	Journal    journal.TurnAppender
	Metrics    *observability.CallMetrics
	Events     *LiveFeed
}

// =============================================================================
// Turn Handler
// =============================================================================

// TurnHandler is the top-level conversation orchestrator.
//
// # Description
//
// Every webhook ends up here. The handler serializes work per call through
// the Store, runs the classifiers on immutable snapshots, applies each turn
// as one mutation, and hands finished calls to the Finalizer on a tracked
// goroutine. Raw errors are never spoken; any internal failure yields the
// persona's error line and the call continues.
//
// # Finalization
//
// A call can be ended by the caller's speech, a terminal telephony status,
// three silences, or the idle sweeper. Whichever reaches the per-call lock
// first ends the session and evicts it; the others find the session ended
// or gone and are counted as duplicate signals.
//
// # Thread Safety
//
// Safe for concurrent use.
type TurnHandler struct {
	deps    TurnDeps
	cfg     TurnConfig
	tracer  trace.Tracer
	pending sync.WaitGroup
}

// NewTurnHandler creates a TurnHandler.
//
// # Outputs
//
//   - *TurnHandler: Ready to serve webhooks.
//   - error: Non-nil when a required collaborator is missing.
func NewTurnHandler(deps TurnDeps, cfg TurnConfig) (*TurnHandler, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("turn handler: store is required")
	case deps.Classifier == nil:
		return nil, errors.New("turn handler: classifier is required")
	case deps.Generator == nil:
		return nil, errors.New("turn handler: generator is required")
	case deps.Finalizer == nil:
		return nil, errors.New("turn handler: finalizer is required")
	}
	if cfg.MaxSilences <= 0 {
		cfg.MaxSilences = DefaultMaxSilences
	}
	if cfg.DayPlanTimeout <= 0 {
		cfg.DayPlanTimeout = DefaultDayPlanTimeout
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = DefaultFinalizeTimeout
	}
	if cfg.JournalTimeout <= 0 {
		cfg.JournalTimeout = defaultJournalTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &TurnHandler{
		deps:   deps,
		cfg:    cfg,
		tracer: otel.Tracer("morningcoach.handlers"),
	}, nil
}

// Voice returns the persona's TTS voice.
func (h *TurnHandler) Voice() string {
	return h.deps.Generator.Persona().Voice
}

// StartCall opens a session and returns the opener.
//
// # Description
//
// A machine answer closes the call at once so it is recorded as a missed
// call. A repeated voice webhook for a live call re-asks the last question
// instead of greeting again. A call that was already finalized is hung up.
//
// # Inputs
//
//   - ctx: Request context.
//   - ev: The first webhook of the call.
//
// # Outputs
//
//   - Response: Always speakable.
func (h *TurnHandler) StartCall(ctx context.Context, ev CallEvent) Response {
	ctx, span := h.tracer.Start(ctx, "handlers.TurnHandler.StartCall",
		trace.WithAttributes(attribute.String("call_sid", ev.CallID)))
	defer span.End()

	sess, created, err := h.deps.Store.Open(ev.CallID, ev.From)
	if err != nil {
		if errors.Is(err, session.ErrCallClosed) {
			slog.Debug("Voice webhook for finalized call", "call_sid", ev.CallID)
			return Response{Hangup: true}
		}
		slog.Error("Opening call session failed", "call_sid", ev.CallID, "error", err)
		return Response{Say: h.deps.Generator.ErrorLine(), Hangup: true}
	}

	if !created {
		snap := sess.Snapshot()
		say := responder.Reprompt
		if last, ok := snap.Transcript.LastAssistant(); ok {
			say = last.Text
		}
		return Response{Say: say, Listen: !snap.Phase.IsTerminal(), Hangup: snap.Phase.IsTerminal()}
	}

	direction := ev.Direction
	if direction == "" {
		direction = DirectionInbound
	}
	h.deps.Metrics.CallStarted(direction)

	if isMachine(ev.AnsweredBy) {
		slog.Info("Call answered by machine", "call_sid", ev.CallID, "answered_by", ev.AnsweredBy)
		sess.MarkVoicemail()
		h.closeCall(ctx, ev.CallID, intent.EndVoicemail, "voice")
		return Response{Hangup: true}
	}

	// The fetch holds the per-call lock so a status callback that lands
	// meanwhile waits for the opener instead of finalizing around it.
	var opener string
	err = h.deps.Store.Do(ctx, ev.CallID, func(s *session.CallSession) error {
		opener = h.openerLine(ctx, s, ev.From)
		return s.AppendTurn(session.RoleAssistant, opener, session.KindOpener)
	})
	switch {
	case errors.Is(err, session.ErrUnknownCall), errors.Is(err, session.ErrSessionEnded):
		slog.Info("Call ended before the opener", "call_sid", ev.CallID)
		return Response{Hangup: true}
	case err != nil:
		slog.Warn("Recording opener failed", "call_sid", ev.CallID, "error", err)
		if opener == "" {
			opener = responder.FallbackOpener
		}
	}
	h.publishTurn(ev.CallID, session.RoleAssistant, session.KindOpener, opener, sess.Snapshot().Phase)
	return Response{Say: opener, Listen: true}
}

// openerLine fetches and snapshots the day plan, briefs the call and
// renders the opener. Runs under the per-call lock.
func (h *TurnHandler) openerLine(ctx context.Context, sess *session.CallSession, from string) string {
	now := h.cfg.Clock().In(h.cfg.Location)
	if h.deps.DayPlans == nil {
		_ = sess.SnapshotDayPlan(session.DayPlan{})
		h.brief(ctx, sess, from, session.DayPlan{}, now, false)
		return responder.Opener(session.DayPlan{}, now)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, h.cfg.DayPlanTimeout)
	plan, err := h.deps.DayPlans.TodayPlan(fetchCtx)
	cancel()
	if err != nil {
		slog.Warn("Day plan unavailable", "call_sid", sess.CallID(), "error", err)
	}
	if snapErr := sess.SnapshotDayPlan(plan); snapErr != nil {
		slog.Debug("Day plan not replaced", "call_sid", sess.CallID(), "error", snapErr)
	}
	if err != nil && plan.IsEmpty() {
		h.brief(ctx, sess, from, session.DayPlan{}, now, false)
		return responder.FallbackOpener
	}
	return responder.BriefedOpener(plan, h.brief(ctx, sess, from, plan, now, true), now)
}

// brief stores the call's briefing. Without a known plan only the
// recent-call line is kept.
func (h *TurnHandler) brief(ctx context.Context, sess *session.CallSession, from string, plan session.DayPlan, now time.Time, planKnown bool) session.Briefing {
	if h.deps.Briefer == nil {
		return session.Briefing{}
	}
	b := h.deps.Briefer.Prepare(ctx, from, plan, now)
	if !planKnown {
		b = session.Briefing{Recent: b.Recent}
	}
	if err := sess.SetBriefing(b); err != nil {
		slog.Debug("Briefing not stored", "call_sid", sess.CallID(), "error", err)
	}
	return b
}

// HandleSpeech processes one caller turn.
//
// # Description
//
// Under the per-call lock: append the caller turn, check end of call, then
// take the tool path, a loop break, or the LLM path. The reply, decisions
// and next phase are applied as one mutation and the turn is journaled.
// An empty result is a silence: the caller is reprompted and the third
// consecutive silence ends the call.
//
// # Inputs
//
//   - ctx: Request context.
//   - ev: The speech result.
//
// # Outputs
//
//   - Response: Always speakable.
func (h *TurnHandler) HandleSpeech(ctx context.Context, ev SpeechEvent) Response {
	ctx, span := h.tracer.Start(ctx, "handlers.TurnHandler.HandleSpeech",
		trace.WithAttributes(attribute.String("call_sid", ev.CallID)))
	defer span.End()

	if _, ok := h.deps.Store.Get(ev.CallID); !ok {
		if _, _, err := h.deps.Store.Open(ev.CallID, ev.From); err != nil {
			slog.Debug("Speech for finalized call", "call_sid", ev.CallID)
			h.deps.Metrics.RecordDuplicateEnd("speech")
			return Response{Hangup: true}
		}
		h.deps.Metrics.CallStarted(DirectionInbound)
	}

	var resp Response
	err := h.deps.Store.Do(ctx, ev.CallID, func(sess *session.CallSession) error {
		resp = h.processTurn(ctx, sess, ev)
		return nil
	})
	if err != nil {
		if errors.Is(err, session.ErrUnknownCall) {
			slog.Debug("Call finalized while speech waited", "call_sid", ev.CallID)
			return Response{Hangup: true}
		}
		slog.Error("Speech turn failed", "call_sid", ev.CallID, "error", err)
		return Response{Say: h.deps.Generator.ErrorLine(), Listen: true}
	}
	return resp
}

// processTurn runs with the per-call lock held.
func (h *TurnHandler) processTurn(ctx context.Context, sess *session.CallSession, ev SpeechEvent) Response {
	start := time.Now()
	if sess.IsEnded() {
		h.deps.Metrics.RecordDuplicateEnd("speech")
		return Response{Hangup: true}
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return h.handleSilence(ctx, sess)
	}
	slog.Debug("Caller said", "call_sid", ev.CallID, "text", text, "confidence", ev.Confidence)

	if err := sess.AppendTurn(session.RoleUser, text, session.KindConversation); err != nil {
		return Response{Hangup: true}
	}
	snap := sess.Snapshot()
	index := snap.Transcript.UserCount()
	h.publishTurn(ev.CallID, session.RoleUser, session.KindConversation, text, snap.Phase)

	if index == 1 && summary.IsMachineGreeting(text) {
		slog.Info("Voicemail greeting detected", "call_sid", ev.CallID)
		sess.MarkVoicemail()
		h.endLocked(ctx, sess, session.Outcome{
			Reply:     responder.VoicemailGoodbye,
			ReplyKind: session.KindClosing,
			End:       true,
			EndReason: string(intent.EndVoicemail),
		})
		return Response{Say: responder.VoicemailGoodbye, Hangup: true}
	}

	if d := h.deps.Classifier.EndOfCall(ctx, snap, text); d.End {
		closing := h.deps.Generator.Closing(summary.TopPriority(snap), h.deps.Classifier.Rand())
		out := session.Outcome{
			Reply:     closing,
			ReplyKind: session.KindClosing,
			End:       true,
			EndReason: string(d.Reason),
		}
		h.deps.Metrics.RecordTurn(string(session.KindClosing))
		h.endLocked(ctx, sess, out)
		h.logTurn(ctx, snap, index, text, out, "", start)
		return Response{Say: closing, Hangup: true}
	}

	out, action := h.reply(ctx, snap, text)
	ended, err := sess.ApplyTurn(out)
	if err != nil {
		slog.Error("Applying turn failed", "call_sid", ev.CallID, "error", err)
		if errors.Is(err, session.ErrSessionEnded) {
			return Response{Hangup: true}
		}
		return Response{Say: h.deps.Generator.ErrorLine(), Listen: true}
	}
	h.publishOutcome(ev.CallID, snap.Phase, out)
	if ended {
		h.beginFinalize(sess, out.EndReason)
	}
	h.logTurn(ctx, snap, index, text, out, action, start)
	return Response{Say: out.Reply, Listen: true}
}

// reply picks the tool, loop-break or LLM path for a caller utterance.
func (h *TurnHandler) reply(ctx context.Context, snap session.Snapshot, text string) (session.Outcome, intent.Action) {
	var out session.Outcome

	if ti, ok := h.deps.Classifier.Tool(ctx, text); ok && h.deps.Tools != nil {
		res := h.runTool(ctx, ti)
		r := h.deps.Generator.Generate(ctx, responder.Request{Snapshot: snap, Phase: snap.Phase, Tool: &res})
		out.Reply, out.ReplyKind = r.Text, r.Kind()
		if d, ok := res.Decision(); ok {
			out.Decisions = append(out.Decisions, session.PendingDecision{Text: d, Source: session.SourceTool})
		}
		h.deps.Metrics.RecordTurn(string(r.Source))
		return out, ti.Action
	}

	phase := h.deps.Classifier.Phase(snap, text)
	req := responder.Request{Snapshot: snap, Phase: phase}
	if lb, ok := h.deps.Classifier.Loop(ctx, snap); ok {
		slog.Info("Conversation loop detected", "call_sid", snap.CallID, "strategy", lb.Strategy)
		req.LoopBreak = &lb
	}
	r := h.deps.Generator.Generate(ctx, req)
	out.Reply, out.ReplyKind, out.NextPhase = r.Text, r.Kind(), phase
	if h.deps.Classifier.Commitment(text) {
		out.Decisions = append(out.Decisions, session.PendingDecision{Text: text, Source: session.SourceCommitment})
	}
	h.deps.Metrics.RecordTurn(string(r.Source))
	return out, ""
}

func (h *TurnHandler) runTool(ctx context.Context, ti intent.ToolIntent) tools.Result {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.ToolTimeout)
	defer cancel()
	res := h.deps.Tools.Execute(ctx, ti)

	outcome := observability.ToolFailure
	switch {
	case res.NotConfigured:
		outcome = observability.ToolNotConfigured
	case res.NeedsClarification:
		outcome = observability.ToolClarify
	case res.Success:
		outcome = observability.ToolSuccess
	}
	h.deps.Metrics.RecordTool(string(ti.Action), outcome)
	return res
}

func (h *TurnHandler) handleSilence(ctx context.Context, sess *session.CallSession) Response {
	n := sess.RecordSilence()
	h.deps.Metrics.RecordTurn("silence")
	if n < h.cfg.MaxSilences {
		return Response{Say: responder.Reprompt, Listen: true}
	}
	slog.Info("Caller silent, ending call", "call_sid", sess.CallID(), "silences", n)
	h.endLocked(ctx, sess, session.Outcome{
		Reply:     responder.NoResponseGoodbye,
		ReplyKind: session.KindClosing,
		End:       true,
		EndReason: string(intent.EndSilence),
	})
	return Response{Say: responder.NoResponseGoodbye, Hangup: true}
}

// endLocked applies a closing outcome and starts finalization. Must run
// under the per-call lock.
func (h *TurnHandler) endLocked(_ context.Context, sess *session.CallSession, out session.Outcome) {
	var ended bool
	if out.Reply != "" {
		var err error
		ended, err = sess.ApplyTurn(out)
		if err == nil {
			h.publishOutcome(sess.CallID(), session.PhaseEnded, out)
		}
		if err != nil && !errors.Is(err, session.ErrSessionEnded) {
			slog.Error("Applying closing turn failed", "call_sid", sess.CallID(), "error", err)
			ended = sess.End(out.EndReason)
		}
	} else {
		ended = sess.End(out.EndReason)
	}
	if ended {
		h.beginFinalize(sess, out.EndReason)
	}
}

// =============================================================================
// Status and Expiry
// =============================================================================

// terminalStatuses end a call when reported by the telephony provider.
var terminalStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
	"busy":      true,
}

// IsTerminalStatus reports whether status ends a call.
func IsTerminalStatus(status string) bool {
	return terminalStatuses[status]
}

// HandleStatus processes a telephony status callback.
//
// Terminal statuses finalize and evict the call; a call already finalized
// is a silent no-op. Other statuses are only logged and counted.
func (h *TurnHandler) HandleStatus(ctx context.Context, ev StatusEvent) {
	h.deps.Metrics.RecordStatus(ev.Status)
	if isMachine(ev.AnsweredBy) {
		if sess, ok := h.deps.Store.Get(ev.CallID); ok {
			sess.MarkVoicemail()
		}
	}
	if !IsTerminalStatus(ev.Status) {
		slog.Info("Call status", "call_sid", ev.CallID, "status", ev.Status)
		return
	}
	h.closeCall(ctx, ev.CallID, intent.EndStatus, "status")
}

// EndCall ends a live call from outside the dialogue, such as the idle
// sweeper. Returns true when this call performed the end.
func (h *TurnHandler) EndCall(ctx context.Context, callID string, reason intent.EndReason) bool {
	return h.closeCall(ctx, callID, reason, "idle")
}

func (h *TurnHandler) closeCall(ctx context.Context, callID string, reason intent.EndReason, signal string) bool {
	var ended bool
	err := h.deps.Store.Do(ctx, callID, func(sess *session.CallSession) error {
		ended = sess.End(string(reason))
		if ended {
			h.beginFinalize(sess, string(reason))
		}
		return nil
	})
	switch {
	case errors.Is(err, session.ErrUnknownCall):
		slog.Debug("End signal for closed call", "call_sid", callID, "signal", signal)
		h.deps.Metrics.RecordDuplicateEnd(signal)
	case err != nil:
		slog.Warn("End signal not applied", "call_sid", callID, "signal", signal, "error", err)
	case !ended:
		slog.Debug("Call already ending", "call_sid", callID, "signal", signal)
		h.deps.Metrics.RecordDuplicateEnd(signal)
	}
	return ended
}

// =============================================================================
// Finalization
// =============================================================================

// beginFinalize evicts the ended session and finalizes its snapshot on a
// tracked goroutine. Must run under the per-call lock, exactly once per
// call; Session.End and ApplyTurn guarantee that.
func (h *TurnHandler) beginFinalize(sess *session.CallSession, reason string) {
	snap := sess.Snapshot()
	h.deps.Store.Evict(snap.CallID)
	h.deps.Metrics.CallEnded(reason)
	slog.Info("Call ended", "call_sid", snap.CallID, "reason", reason,
		"turns", snap.Transcript.DialogueLen(), "decisions", len(snap.Decisions))
	h.deps.Events.Publish(LiveEvent{Type: LiveEventEnded, CallID: snap.CallID, Reason: reason, At: h.cfg.Clock()})

	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.FinalizeTimeout)
		defer cancel()
		res := h.deps.Finalizer.Finalize(ctx, snap)
		h.deps.Metrics.RecordFinalization(string(res.SessionType), string(res.Summary.Source))
	}()
}

// Drain waits for in-flight finalizations.
//
// # Outputs
//
//   - error: ctx.Err() if ctx ended first.
func (h *TurnHandler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining finalizations: %w", ctx.Err())
	}
}

// =============================================================================
// Live Feed
// =============================================================================

func (h *TurnHandler) publishTurn(callID string, role session.Role, kind session.TurnKind, text string, phase session.Phase) {
	h.deps.Events.Publish(LiveEvent{
		Type:   LiveEventTurn,
		CallID: callID,
		Role:   string(role),
		Kind:   string(kind),
		Text:   text,
		Phase:  string(phase),
		At:     h.cfg.Clock(),
	})
}

func (h *TurnHandler) publishOutcome(callID string, phase session.Phase, out session.Outcome) {
	if out.Reply == "" {
		return
	}
	if out.NextPhase != "" {
		phase = out.NextPhase
	}
	if out.End {
		phase = session.PhaseEnded
	}
	h.publishTurn(callID, session.RoleAssistant, out.ReplyKind, out.Reply, phase)
}

// =============================================================================
// Turn Log
// =============================================================================

func (h *TurnHandler) logTurn(ctx context.Context, snap session.Snapshot, index int, utterance string, out session.Outcome, action intent.Action, start time.Time) {
	if h.deps.Journal == nil {
		return
	}
	phase := out.NextPhase
	if phase == "" {
		phase = snap.Phase
	}
	if out.End {
		phase = session.PhaseEnded
	}
	rec := journal.TurnLogRecord{
		ID:        uuid.New().String(),
		CallID:    snap.CallID,
		Index:     index,
		Utterance: utterance,
		Reply:     out.Reply,
		ReplyKind: string(out.ReplyKind),
		Phase:     string(phase),
		Action:    string(action),
		Ended:     out.End,
		EndReason: out.EndReason,
		Latency:   time.Since(start),
		Timestamp: h.cfg.Clock(),
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.JournalTimeout)
	defer cancel()
	if err := h.deps.Journal.AppendTurn(ctx, rec); err != nil {
		slog.Warn("Journaling turn failed", "call_sid", snap.CallID, "error", err)
		h.deps.Metrics.RecordJournalError("turn")
	}
}

func isMachine(answeredBy string) bool {
	for _, m := range machineAnsweredBy {
		if answeredBy == m {
			return true
		}
	}
	return false
}
