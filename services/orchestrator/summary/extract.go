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
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/AleutianAI/MorningCoach/services/llm"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

// ErrIncompleteSummary is returned when the model's JSON is missing
// required fields.
var ErrIncompleteSummary = errors.New("summary: incomplete extraction")

const extractionPrompt = `Analyze this morning coaching call and extract structured data.

Transcript:
{{.transcript}}

Decisions recorded during the call:
{{.decisions}}

Return ONLY a JSON object with exactly these fields:
{"key_decisions": ["..."], "commitments": [{"task": "...", "timeframe": "..."}], "mood_energy": "...", "session_outcome": "productive|planning|adjustment"}
Only list commitments the caller actually made. Use empty arrays when there are none.`

var extractionTemplate = prompts.NewPromptTemplate(extractionPrompt, []string{"transcript", "decisions"})

// extract asks the model for a structured summary.
//
// Description:
//
//	Renders the transcript and decisions into the extraction prompt,
//	runs a low temperature chat call and parses the reply with
//	ParseExtraction. Any failure is returned so the caller can fall back
//	to the heuristic.
func extract(ctx context.Context, client llm.LLMClient, snap session.Snapshot) (Summary, error) {
	prompt, err := extractionTemplate.Format(map[string]any{
		"transcript": formatTranscript(snap),
		"decisions":  formatDecisions(snap),
	})
	if err != nil {
		return Summary{}, fmt.Errorf("rendering extraction prompt: %w", err)
	}

	reply, err := client.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You extract structured data from call transcripts. You reply with JSON only."},
		{Role: "user", Content: prompt},
	}, llm.GenerationParams{
		Temperature: llm.Float32(0.1),
		MaxTokens:   llm.Int(400),
	})
	if err != nil {
		return Summary{}, fmt.Errorf("extraction call: %w", err)
	}
	return ParseExtraction(reply)
}

// ParseExtraction parses a model's structured summary reply.
//
// Description:
//
//	Accepts a bare JSON object or one wrapped in a markdown code fence or
//	surrounding prose. The object must carry key_decisions, commitments,
//	mood_energy and a known session_outcome, and every commitment needs a
//	task. Null arrays are normalized to empty ones.
//
// Inputs:
//
//	reply - Raw model output.
//
// Outputs:
//
//	Summary - Source is SourceLLM.
//	error - Non-nil when the reply is not valid JSON or misses a field.
func ParseExtraction(reply string) (Summary, error) {
	body := jsonObject(reply)
	if body == "" {
		return Summary{}, fmt.Errorf("%w: no JSON object in reply", ErrIncompleteSummary)
	}

	var raw struct {
		KeyDecisions *[]string     `json:"key_decisions"`
		Commitments  *[]Commitment `json:"commitments"`
		MoodEnergy   *string       `json:"mood_energy"`
		Outcome      *Outcome      `json:"session_outcome"`
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrIncompleteSummary, err)
	}

	switch {
	case raw.KeyDecisions == nil:
		return Summary{}, fmt.Errorf("%w: missing key_decisions", ErrIncompleteSummary)
	case raw.Commitments == nil:
		return Summary{}, fmt.Errorf("%w: missing commitments", ErrIncompleteSummary)
	case raw.MoodEnergy == nil || strings.TrimSpace(*raw.MoodEnergy) == "":
		return Summary{}, fmt.Errorf("%w: missing mood_energy", ErrIncompleteSummary)
	case raw.Outcome == nil || !raw.Outcome.IsValid():
		return Summary{}, fmt.Errorf("%w: bad session_outcome", ErrIncompleteSummary)
	}
	for _, c := range *raw.Commitments {
		if strings.TrimSpace(c.Task) == "" {
			return Summary{}, fmt.Errorf("%w: commitment without task", ErrIncompleteSummary)
		}
	}

	s := Summary{
		KeyDecisions: *raw.KeyDecisions,
		Commitments:  *raw.Commitments,
		MoodEnergy:   strings.TrimSpace(*raw.MoodEnergy),
		Outcome:      *raw.Outcome,
		Source:       SourceLLM,
	}
	if s.KeyDecisions == nil {
		s.KeyDecisions = []string{}
	}
	if s.Commitments == nil {
		s.Commitments = []Commitment{}
	}
	return s, nil
}

// jsonObject returns the outermost {...} span of s.
func jsonObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func formatTranscript(snap session.Snapshot) string {
	var b strings.Builder
	for _, t := range snap.Transcript.All() {
		switch t.Role {
		case session.RoleUser:
			b.WriteString("Caller: ")
		case session.RoleAssistant:
			b.WriteString("Coach: ")
		default:
			continue
		}
		b.WriteString(t.Text)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

func formatDecisions(snap session.Snapshot) string {
	if len(snap.Decisions) == 0 {
		return "(none)"
	}
	lines := make([]string, len(snap.Decisions))
	for i, d := range snap.Decisions {
		lines[i] = "- " + d.Text
	}
	return strings.Join(lines, "\n")
}
