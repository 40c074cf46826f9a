// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package responder produces the coach's spoken lines.
//
// Replies come from one of four sources: a templated tool outcome, a fixed
// loop-break line, the LLM, or a scripted per-phase fallback. The caller
// always gets a non-empty line, and raw errors are never spoken.
//
// Thread Safety:
//
//	A Generator is safe for concurrent use.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tmc/langchaingo/prompts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/MorningCoach/services/llm"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/intent"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/tools"
)

const (
	// DefaultTimeout bounds one LLM reply.
	DefaultTimeout = 6 * time.Second

	// DefaultContextTurns is how many dialogue turns are sent to the model.
	DefaultContextTurns = 6
)

// Source records where a reply came from.
type Source string

const (
	SourceTool      Source = "tool"
	SourceLoopBreak Source = "loop_break"
	SourceLLM       Source = "llm"
	SourceFallback  Source = "fallback"
)

// Reply is one spoken line.
type Reply struct {
	Text   string
	Source Source
}

// Kind maps the reply source to the transcript turn kind.
func (r Reply) Kind() session.TurnKind {
	switch r.Source {
	case SourceTool:
		return session.KindTool
	case SourceLoopBreak:
		return session.KindLoopBreak
	case SourceFallback:
		return session.KindFallback
	default:
		return session.KindConversation
	}
}

// Request is the input to Generate. At most one of Tool and LoopBreak
// should be set; Tool wins when both are.
type Request struct {
	// Snapshot includes the caller's newest turn.
	Snapshot session.Snapshot

	// Phase is the phase the reply should serve.
	Phase session.Phase

	Tool      *tools.Result
	LoopBreak *intent.LoopBreak
}

// LLMObserver receives the latency and outcome of every model call.
type LLMObserver func(elapsed time.Duration, err error)

// Config configures a Generator.
type Config struct {
	Timeout      time.Duration
	ContextTurns int
	Observer     LLMObserver
}

// Generator produces replies for one persona. The persona can be replaced
// while calls are running; each reply uses the persona that was active
// when it started.
type Generator struct {
	client   llm.LLMClient
	active   atomic.Pointer[compiledPersona]
	timeout  time.Duration
	turns    int
	observer LLMObserver
	tracer   trace.Tracer
}

// compiledPersona is a persona with its prompt templates.
type compiledPersona struct {
	persona Persona
	system  prompts.PromptTemplate
	closing prompts.PromptTemplate
}

// NewGenerator builds a Generator.
//
// Description:
//
//	Compiles the persona's system prompt and priority closing as
//	langchaingo prompt templates and renders each once with placeholder
//	values so a broken template fails at startup, not mid-call.
//
// Inputs:
//
//	client - LLM backend. Nil makes every conversational reply a fallback.
//	persona - The deployment's persona.
//	cfg - Timeouts and context size. Zero values use defaults.
//
// Outputs:
//
//	*Generator - Ready to use.
//	error - Non-nil when a persona template does not render.
func NewGenerator(client llm.LLMClient, persona Persona, cfg Config) (*Generator, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = DefaultContextTurns
	}
	g := &Generator{
		client:   client,
		timeout:  cfg.Timeout,
		turns:    cfg.ContextTurns,
		observer: cfg.Observer,
		tracer:   otel.Tracer("morningcoach.responder"),
	}
	if err := g.SetPersona(persona); err != nil {
		return nil, err
	}
	return g, nil
}

// SetPersona compiles persona and makes it active. On error the previous
// persona stays active.
func (g *Generator) SetPersona(persona Persona) error {
	cp := &compiledPersona{
		persona: persona,
		system:  prompts.NewPromptTemplate(persona.SystemPrompt, []string{"phase", "context", "phase_guidance", "word_range"}),
		closing: prompts.NewPromptTemplate(persona.PriorityClosing, []string{"priority"}),
	}
	if _, err := cp.systemPrompt(session.Snapshot{}, session.PhaseExploration); err != nil {
		return fmt.Errorf("persona %s system prompt: %w", persona.Name, err)
	}
	if persona.PriorityClosing != "" {
		if _, err := cp.closing.Format(map[string]any{"priority": "x"}); err != nil {
			return fmt.Errorf("persona %s priority closing: %w", persona.Name, err)
		}
	}
	g.active.Store(cp)
	return nil
}

// Persona returns the active persona.
func (g *Generator) Persona() Persona {
	return g.active.Load().persona
}

// Generate produces the coach's next line.
//
// Description:
//
//	A tool result is rendered from a template and a loop break is spoken
//	verbatim; neither calls the model. Otherwise the persona system prompt,
//	phase guidance, day-plan context and the last few dialogue turns go to
//	the LLM under the generator's timeout. Any model error, timeout or
//	empty output yields the persona's fallback for the phase.
//
// Inputs:
//
//	ctx - Parent context.
//	req - Snapshot, phase and optional tool result or loop break.
//
// Outputs:
//
//	Reply - Never has empty Text.
func (g *Generator) Generate(ctx context.Context, req Request) Reply {
	ctx, span := g.tracer.Start(ctx, "responder.Generate",
		trace.WithAttributes(attribute.String("phase", string(req.Phase))))
	defer span.End()

	cp := g.active.Load()
	var reply Reply
	switch {
	case req.Tool != nil:
		reply = Reply{Text: ToolReply(*req.Tool), Source: SourceTool}
	case req.LoopBreak != nil:
		reply = Reply{Text: req.LoopBreak.Text, Source: SourceLoopBreak}
	default:
		reply = g.converse(ctx, cp, req)
	}
	if strings.TrimSpace(reply.Text) == "" {
		reply = Reply{Text: cp.persona.Fallback(req.Phase), Source: SourceFallback}
	}
	span.SetAttributes(attribute.String("reply.source", string(reply.Source)))
	return reply
}

// Fallback returns the scripted line for phase.
func (g *Generator) Fallback(phase session.Phase) Reply {
	return Reply{Text: g.Persona().Fallback(phase), Source: SourceFallback}
}

// ErrorLine is spoken when the turn pipeline itself fails.
func (g *Generator) ErrorLine() string {
	p := g.Persona()
	if p.ErrorLine != "" {
		return p.ErrorLine
	}
	return p.Fallback("")
}

func (g *Generator) converse(ctx context.Context, cp *compiledPersona, req Request) Reply {
	fallback := Reply{Text: cp.persona.Fallback(req.Phase), Source: SourceFallback}
	if g.client == nil {
		return fallback
	}

	system, err := cp.systemPrompt(req.Snapshot, req.Phase)
	if err != nil {
		slog.Error("Rendering system prompt failed", "persona", cp.persona.Name, "error", err)
		return fallback
	}
	messages := []llm.Message{{Role: string(session.RoleSystem), Content: system}}
	for _, t := range req.Snapshot.Transcript.DialogueWindow(g.turns) {
		messages = append(messages, llm.Message{Role: string(t.Role), Content: t.Text})
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.client.Chat(ctx, messages, llm.GenerationParams{
		Temperature: llm.Float32(cp.persona.Temperature),
		MaxTokens:   llm.Int(cp.persona.MaxTokens),
	})
	if g.observer != nil {
		g.observer(time.Since(start), err)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			slog.Warn("LLM reply timed out", "call_sid", req.Snapshot.CallID, "timeout", g.timeout)
		} else {
			slog.Error("LLM reply failed", "call_sid", req.Snapshot.CallID, "error", err)
		}
		return fallback
	}

	clean := Sanitize(text, cp.persona.MaxReplyChars)
	if clean == "" {
		slog.Warn("LLM returned an empty reply", "call_sid", req.Snapshot.CallID)
		return fallback
	}
	return Reply{Text: clean, Source: SourceLLM}
}

// systemPrompt renders the persona prompt with phase guidance and context.
func (cp *compiledPersona) systemPrompt(snap session.Snapshot, phase session.Phase) (string, error) {
	phaseName := string(phase)
	if phaseName == "" {
		phaseName = phaseGeneral
	}
	return cp.system.Format(map[string]any{
		"phase":          phaseName,
		"context":        conversationContext(snap),
		"phase_guidance": cp.persona.Guidance(phase),
		"word_range":     cp.persona.WordRange,
	})
}

// conversationContext summarizes the plan and progress in one line.
func conversationContext(snap session.Snapshot) string {
	parts := []string{
		fmt.Sprintf("Today: %d tasks, %d calendar items", len(snap.DayPlan.Tasks), len(snap.DayPlan.Events)),
	}
	if len(snap.DayPlan.Tasks) > 0 {
		names := make([]string, 0, 3)
		for i, t := range snap.DayPlan.Tasks {
			if i == 3 {
				break
			}
			names = append(names, t.Text)
		}
		parts = append(parts, "Top tasks: "+strings.Join(names, ", "))
	}
	parts = append(parts, briefingContext(snap.Briefing)...)
	if len(snap.Decisions) > 0 {
		decided := make([]string, len(snap.Decisions))
		for i, d := range snap.Decisions {
			decided[i] = d.Text
		}
		parts = append(parts, "Decided so far: "+strings.Join(decided, "; "))
	}
	parts = append(parts, fmt.Sprintf("%d exchanges so far", snap.Transcript.UserCount()))
	return strings.Join(parts, ". ")
}

// briefingContext renders the call-start briefing for the prompt.
func briefingContext(b session.Briefing) []string {
	var parts []string
	if len(b.Priorities) > 0 {
		parts = append(parts, "Priorities: "+strings.Join(b.Priorities, ", "))
	}
	if len(b.Conflicts) > 0 {
		parts = append(parts, fmt.Sprintf("%d timing issues: %s", len(b.Conflicts), strings.Join(b.Conflicts, "; ")))
	}
	if len(b.FreeSlots) > 0 {
		parts = append(parts, "Open slots: "+strings.Join(b.FreeSlots, ", "))
	}
	if b.Energy != "" {
		parts = append(parts, "Energy: "+b.Energy+" day")
	}
	if b.Focus != "" {
		parts = append(parts, "Suggested focus: "+b.Focus)
	}
	if b.Recent != "" {
		parts = append(parts, strings.TrimSuffix(b.Recent, "."))
	}
	return parts
}

// =============================================================================
// Tool Replies
// =============================================================================

// ToolReply renders a tool outcome as a spoken line.
//
// Successful changes are confirmed with "Got it.", queries and clarifying
// questions are spoken as-is, and failures say what could not be done.
func ToolReply(res tools.Result) string {
	switch {
	case res.NeedsClarification:
		return res.Message
	case res.Success && res.IsQuery():
		return res.Message
	case res.Success:
		return "Got it. " + res.Message
	}
	return failurePrefix(res.Action) + " " + res.Message
}

func failurePrefix(action intent.Action) string {
	switch action {
	case intent.ActionRescheduleEvent:
		return "Couldn't move that."
	case intent.ActionCancelEvent:
		return "Couldn't cancel that."
	case intent.ActionQueryCalendar, intent.ActionQueryFreeSlots:
		return "Couldn't check your calendar."
	default:
		return "Couldn't add that."
	}
}
