// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package responder

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/intent"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

// Fixed call-flow lines.
const (
	// FallbackOpener is spoken when the day plan or opener cannot be built.
	FallbackOpener = "Morning. Ready to tackle your day?"

	// Reprompt follows the first listen window when the caller says nothing.
	Reprompt = "Still there? What do you want to tackle first?"

	// NoResponseGoodbye ends a call the caller never answered.
	NoResponseGoodbye = "Talk to you tomorrow. Stay focused."

	// VoicemailGoodbye is left on an answering machine.
	VoicemailGoodbye = "Sorry I missed you. I'll catch you tomorrow morning."

	// FallbackClosing is spoken when the closing line cannot be built.
	FallbackClosing = "Session complete. Talk tomorrow!"
)

const (
	soonWindow        = 3 * time.Hour
	mentionEventUnder = 90 * time.Minute
	openerTaskCount   = 2
	openerTaskChars   = 20
)

// Opener builds the first line of the call from the day plan.
//
// Description:
//
//	Greets by hour (before 8, before 10, later), mentions the next event
//	when it starts within 90 minutes, and names up to two tasks, each cut
//	to 20 characters. Ends with a question that invites the caller's
//	first priority.
//
// Inputs:
//
//	plan - The caller's day plan. May be empty.
//	now - Current time in the caller's location.
//
// Outputs:
//
//	string - The opener.
//
// Examples:
//
//	Opener(session.DayPlan{}, sevenAM)
//	// "Early start today. What's your main focus today?"
func Opener(plan session.DayPlan, now time.Time) string {
	return BriefedOpener(plan, session.Briefing{}, now)
}

// BriefedOpener is Opener with the call's briefing. When the briefing found
// timing conflicts the opener counts them and asks about adjustments
// instead of the usual closing question.
func BriefedOpener(plan session.DayPlan, b session.Briefing, now time.Time) string {
	greeting := "Getting going."
	switch h := now.Hour(); {
	case h < 8:
		greeting = "Early start today."
	case h < 10:
		greeting = "Morning."
	}

	var details []string
	for _, ev := range plan.Events {
		until := ev.Start.Sub(now)
		if until <= 0 || until >= soonWindow {
			continue
		}
		if until < mentionEventUnder {
			details = append(details, fmt.Sprintf("%s in %d minutes", ev.Title, int(until.Minutes())))
		}
		break
	}

	var names []string
	for i, t := range plan.Tasks {
		if i == openerTaskCount {
			break
		}
		text := t.Text
		if text == "" {
			text = "Task"
		}
		if r := []rune(text); len(r) > openerTaskChars {
			text = string(r[:openerTaskChars]) + "..."
		}
		names = append(names, text)
	}
	if len(names) > 0 {
		details = append(details, strings.Join(names, " and ")+" to do")
	}

	if n := len(b.Conflicts); n > 0 {
		issues := fmt.Sprintf("I see %d timing issues. Need adjustments?", n)
		if n == 1 {
			issues = "I see 1 timing issue. Need adjustments?"
		}
		if len(details) == 0 {
			return greeting + " " + issues
		}
		return greeting + " " + strings.Join(details, ", ") + ". " + issues
	}

	switch len(details) {
	case 0:
		return greeting + " What's your main focus today?"
	case 1:
		return greeting + " " + details[0] + ". Ready?"
	default:
		return greeting + " " + strings.Join(details, ", ") + ". What's first?"
	}
}

// Closing builds the goodbye line spoken when the call ends.
//
// When topPriority is set the persona's priority closing names it;
// otherwise one of the persona's stock closings is picked with rng.
func (g *Generator) Closing(topPriority string, rng intent.Intner) string {
	cp := g.active.Load()
	if topPriority != "" && cp.persona.PriorityClosing != "" {
		line, err := cp.closing.Format(map[string]any{"priority": topPriority})
		if err == nil && strings.TrimSpace(line) != "" {
			return line
		}
		slog.Warn("Rendering priority closing failed", "persona", cp.persona.Name, "error", err)
	}
	if len(cp.persona.Closings) == 0 {
		return FallbackClosing
	}
	idx := 0
	if rng != nil {
		idx = rng.Intn(len(cp.persona.Closings))
	}
	return cp.persona.Closings[idx]
}
