// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package briefing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/prompts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/MorningCoach/services/llm"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/summary"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/tools"
)

const (
	// DefaultTimeout bounds the model's day read.
	DefaultTimeout = 3 * time.Second

	// DefaultHistoryDepth is how many stored sessions are scanned for
	// the recent-call read.
	DefaultHistoryDepth = 10
)

// ErrIncompleteAnalysis is returned when the model's day read is unusable.
var ErrIncompleteAnalysis = errors.New("briefing: incomplete analysis")

// HistoryReader reads finalized sessions, newest first.
type HistoryReader interface {
	RecentSessions(ctx context.Context, limit int) ([]summary.SessionRecord, error)
}

// Config configures an Analyzer. Zero values use defaults.
type Config struct {
	Timeout      time.Duration
	HistoryDepth int
}

// Analyzer prepares the briefing for each call.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Analyzer struct {
	client  llm.LLMClient
	history HistoryReader
	timeout time.Duration
	depth   int
	tracer  trace.Tracer
}

// NewAnalyzer builds an Analyzer. A nil client keeps the day read
// heuristic; a nil history leaves Recent empty.
func NewAnalyzer(client llm.LLMClient, history HistoryReader, cfg Config) *Analyzer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = DefaultHistoryDepth
	}
	return &Analyzer{
		client:  client,
		history: history,
		timeout: cfg.Timeout,
		depth:   cfg.HistoryDepth,
		tracer:  otel.Tracer("morningcoach.briefing"),
	}
}

// Prepare reads the day and the caller's recent calls.
//
// # Description
//
// Starts from Analyze. When a model is configured and the plan is not
// empty, the model is asked for priorities, energy and a focus line under
// the analyzer's timeout; any failure keeps the heuristic values.
// Conflicts and free slots always come from the plan. The recent-call
// line is read from history when one is configured.
//
// # Inputs
//
//   - ctx: Call-start context.
//   - from: Caller number, used to pick the caller's own history.
//   - plan: The snapshotted day plan.
//   - now: Current time in the caller's location.
//
// # Outputs
//
//   - session.Briefing: Never fails; degraded reads are logged.
func (a *Analyzer) Prepare(ctx context.Context, from string, plan session.DayPlan, now time.Time) session.Briefing {
	ctx, span := a.tracer.Start(ctx, "briefing.Analyzer.Prepare")
	defer span.End()

	b := Analyze(plan, now)
	b.Recent = a.recent(ctx, from, now)

	if a.client != nil && !plan.IsEmpty() {
		refined, err := a.refine(ctx, plan, b, now)
		if err != nil {
			slog.Warn("Day analysis fell back to heuristic", "error", err)
		} else {
			b.Priorities = refined.Priorities
			b.Energy = refined.Energy
			if refined.Focus != "" {
				b.Focus = refined.Focus
			}
			b.Source = SourceLLM
		}
	}
	span.SetAttributes(
		attribute.String("briefing.source", b.Source),
		attribute.Int("briefing.conflicts", len(b.Conflicts)),
	)
	return b
}

func (a *Analyzer) recent(ctx context.Context, from string, now time.Time) string {
	if a.history == nil {
		return ""
	}
	recs, err := a.history.RecentSessions(ctx, a.depth)
	if err != nil {
		slog.Warn("Reading recent sessions failed", "error", err)
		return ""
	}
	return RecentContext(recs, from, now)
}

// =============================================================================
// Model Refinement
// =============================================================================

const analysisPrompt = `Read this person's day before a short morning coaching call.

Tasks (priority in brackets):
{{.tasks}}

Calendar:
{{.events}}

Timing conflicts already found: {{.conflicts}}
{{.recent}}

Return ONLY a JSON object with exactly these fields:
{"priority_items": ["..."], "energy_assessment": "light|moderate|heavy", "focus_recommendation": "..."}
List at most three priority items, most important first, using the task or event names.`

var analysisTemplate = prompts.NewPromptTemplate(analysisPrompt, []string{"tasks", "events", "conflicts", "recent"})

func (a *Analyzer) refine(ctx context.Context, plan session.DayPlan, b session.Briefing, now time.Time) (session.Briefing, error) {
	prompt, err := analysisTemplate.Format(map[string]any{
		"tasks":     formatTasks(plan.Tasks),
		"events":    formatEvents(plan.Events, now.Location()),
		"conflicts": len(b.Conflicts),
		"recent":    b.Recent,
	})
	if err != nil {
		return session.Briefing{}, fmt.Errorf("rendering analysis prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	reply, err := a.client.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You plan days for a productivity coach. You reply with JSON only."},
		{Role: "user", Content: prompt},
	}, llm.GenerationParams{
		Temperature: llm.Float32(0.2),
		MaxTokens:   llm.Int(250),
	})
	if err != nil {
		return session.Briefing{}, fmt.Errorf("analysis call: %w", err)
	}
	return ParseAnalysis(reply)
}

// ParseAnalysis parses the model's day read. The reply may wrap the JSON
// object in prose or a code fence. Priorities are capped at three.
func ParseAnalysis(reply string) (session.Briefing, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return session.Briefing{}, fmt.Errorf("%w: no JSON object in reply", ErrIncompleteAnalysis)
	}
	var raw struct {
		Priorities []string `json:"priority_items"`
		Energy     string   `json:"energy_assessment"`
		Focus      string   `json:"focus_recommendation"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return session.Briefing{}, fmt.Errorf("%w: %v", ErrIncompleteAnalysis, err)
	}

	var priorities []string
	for _, p := range raw.Priorities {
		if p = strings.TrimSpace(p); p != "" && len(priorities) < maxPriorities {
			priorities = append(priorities, p)
		}
	}
	if len(priorities) == 0 {
		return session.Briefing{}, fmt.Errorf("%w: no priority_items", ErrIncompleteAnalysis)
	}
	energy := strings.ToLower(strings.TrimSpace(raw.Energy))
	switch energy {
	case EnergyLight, EnergyModerate, EnergyHeavy:
	default:
		return session.Briefing{}, fmt.Errorf("%w: bad energy_assessment %q", ErrIncompleteAnalysis, raw.Energy)
	}
	return session.Briefing{
		Priorities: priorities,
		Energy:     energy,
		Focus:      strings.TrimSpace(raw.Focus),
		Source:     SourceLLM,
	}, nil
}

func formatTasks(tasks []session.Task) string {
	if len(tasks) == 0 {
		return "(none)"
	}
	lines := make([]string, len(tasks))
	for i, t := range tasks {
		lines[i] = fmt.Sprintf("- %s [%g]", t.Text, t.Priority)
	}
	return strings.Join(lines, "\n")
}

func formatEvents(events []session.CalendarEvent, loc *time.Location) string {
	if len(events) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(events))
	for _, ev := range sortedEvents(events) {
		lines = append(lines, fmt.Sprintf("- %s to %s: %s",
			tools.FormatClock(ev.Start.In(loc)), tools.FormatClock(eventEnd(ev).In(loc)), ev.Title))
	}
	return strings.Join(lines, "\n")
}
