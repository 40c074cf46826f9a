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
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/intent"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

const (
	// meaningfulChars is the length a caller turn must exceed to count
	// toward a substantive session.
	meaningfulChars = 5

	// minMeaningfulTurns is the fewest meaningful caller turns for a
	// substantive session.
	minMeaningfulTurns = 2

	maxPriorities = 3
	maxTaskChars  = 60
	briefNotes    = "Brief check-in completed"
	defaultWhen   = "today"
)

var (
	// machineGreetingPattern only holds phrasing a person answering a
	// coaching call would not use. "Not available" or "voicemail" alone
	// are ordinary speech.
	machineGreetingPattern = regexp.MustCompile(`(?i)(leave (a|your) (message|name)|after the (tone|beep)|at the (tone|beep)|please record|record your message|can'?t (take|come to) the phone|the (person|party|number) you (are calling|have (dialed|called|reached))|you'?ve reached the (voice ?mail|mailbox)|(voice ?mail|mailbox) (box )?(of|for|is full))`)
	numericPattern   = regexp.MustCompile(`^[\d\s\-.,()+#*]+$`)
	durationPattern  = regexp.MustCompile(`(?i)\b(\d+)\s*(minutes?|mins?|hours?|hrs?)\b`)
)

// Mood rules are checked in order; the first match wins.
var moodRules = []struct {
	pattern *regexp.Regexp
	mood    string
	energy  string
}{
	{regexp.MustCompile(`\b(good|great|excellent|awesome|ready|excited|energized)\b`), "Positive", "High"},
	{regexp.MustCompile(`\b(tired|slow|difficult|hard|struggle|struggling|overwhelmed|exhausted)\b`), "Low", "Low"},
	{regexp.MustCompile(`\b(ok|okay|fine|decent|normal|alright)\b`), "Neutral", "Medium"},
}

// =============================================================================
// Session Classification
// =============================================================================

// Classify assigns a session type.
//
// Description:
//
//	Voicemail is checked first: the IsVoicemail flag, a first caller
//	utterance with answering-machine phrasing, or a first utterance made
//	only of digits and punctuation. Then fewer than two caller turns longer
//	than five characters makes the session brief. Everything else is
//	substantive.
//
// Inputs:
//
//	snap - Final snapshot of the call.
//
// Outputs:
//
//	session.SessionType - Never SessionUnknown.
func Classify(snap session.Snapshot) session.SessionType {
	users := snap.Transcript.ByRole(session.RoleUser)
	if snap.IsVoicemail {
		return session.SessionVoicemail
	}
	if len(users) > 0 && IsVoicemailUtterance(users[0].Text) {
		return session.SessionVoicemail
	}

	meaningful := 0
	for _, u := range users {
		if len([]rune(strings.TrimSpace(u.Text))) > meaningfulChars {
			meaningful++
		}
	}
	if meaningful < minMeaningfulTurns {
		return session.SessionBrief
	}
	return session.SessionSubstantive
}

// IsVoicemailUtterance reports whether text sounds like an answering
// machine rather than a person: a machine greeting, or only digits and
// punctuation.
func IsVoicemailUtterance(text string) bool {
	s := strings.TrimSpace(text)
	if s == "" {
		return false
	}
	return machineGreetingPattern.MatchString(s) || numericPattern.MatchString(s)
}

// IsMachineGreeting reports whether text is an answering machine's
// greeting. Stricter than IsVoicemailUtterance; safe to hang up on.
func IsMachineGreeting(text string) bool {
	return machineGreetingPattern.MatchString(strings.TrimSpace(text))
}

// =============================================================================
// Heuristic Summary
// =============================================================================

// Heuristic builds a summary without a model.
//
// Description:
//
//	Key decisions are the recorded decisions in order. Commitments come
//	only from decisions captured from the caller's own commitment
//	language, each with a timeframe taken from a duration or time phrase
//	in it. Mood comes from the first matching mood rule. The outcome is
//	brief for brief sessions, productive when commitments exist,
//	adjustment when the caller sounded low, and planning otherwise.
//
// Inputs:
//
//	snap - Final snapshot of the call.
//	st - The session type from Classify.
//
// Outputs:
//
//	Summary - Source is always SourceHeuristic.
func Heuristic(snap session.Snapshot, st session.SessionType) Summary {
	insights := ExtractInsights(snap)
	s := Summary{
		MoodEnergy: moodEnergy(insights),
		Source:     SourceHeuristic,
	}

	switch st {
	case session.SessionVoicemail:
		s.Outcome = OutcomeVoicemail
		return s
	case session.SessionBrief:
		s.Outcome = OutcomeBrief
		return s
	}

	seen := map[string]bool{}
	for _, d := range snap.Decisions {
		if !seen[d.Text] {
			seen[d.Text] = true
			s.KeyDecisions = append(s.KeyDecisions, d.Text)
		}
		if d.Source == session.SourceCommitment {
			s.Commitments = append(s.Commitments, Commitment{
				Task:      truncate(d.Text, maxTaskChars),
				Timeframe: timeframe(d.Text),
			})
		}
	}

	switch {
	case len(s.Commitments) > 0:
		s.Outcome = OutcomeProductive
	case insights.Mood == "Low":
		s.Outcome = OutcomeAdjustment
	default:
		s.Outcome = OutcomePlanning
	}
	return s
}

// ExtractInsights derives the check-in view of a session.
//
// Description:
//
//	Priorities are day-plan tasks whose first word the caller said, then
//	time commitments such as "30 minutes commitment made", keeping the
//	first three unique entries. Mood and energy come from the first
//	matching mood rule over all caller speech, defaulting to Neutral and
//	Medium. Notes name the decision count and top priority, or say the
//	check-in was brief.
//
// Inputs:
//
//	snap - Snapshot of the call.
//
// Outputs:
//
//	Insights - Date is the call's start date, YYYY-MM-DD.
func ExtractInsights(snap session.Snapshot) Insights {
	in := Insights{
		Date:   snap.StartTime.Format("2006-01-02"),
		Mood:   "Neutral",
		Energy: "Medium",
	}

	users := snap.Transcript.ByRole(session.RoleUser)
	var mentions []string
	for _, u := range users {
		lower := strings.ToLower(u.Text)
		for _, task := range snap.DayPlan.Tasks {
			words := strings.Fields(strings.ToLower(task.Text))
			if len(words) > 0 && strings.Contains(lower, words[0]) {
				mentions = append(mentions, task.Text)
			}
		}
		if m := durationPattern.FindString(u.Text); m != "" {
			mentions = append(mentions, m+" commitment made")
		}
	}
	in.Priorities = uniqueFirst(mentions, maxPriorities)

	combined := make([]string, len(users))
	for i, u := range users {
		combined[i] = strings.ToLower(u.Text)
	}
	all := strings.Join(combined, " ")
	for _, rule := range moodRules {
		if rule.pattern.MatchString(all) {
			in.Mood, in.Energy = rule.mood, rule.energy
			break
		}
	}

	var notes []string
	if n := len(snap.Decisions); n > 0 {
		notes = append(notes, fmt.Sprintf("Made %d commitments", n))
	}
	if len(in.Priorities) > 0 {
		notes = append(notes, "Focus: "+in.Priorities[0])
	}
	in.Notes = strings.Join(notes, ". ")
	if in.Notes == "" {
		in.Notes = briefNotes
	}
	return in
}

// TopPriority returns the first priority, or the first decision's task
// when no priority was found.
func TopPriority(snap session.Snapshot) string {
	if p := ExtractInsights(snap).Priorities; len(p) > 0 && !strings.HasSuffix(p[0], " commitment made") {
		return p[0]
	}
	for _, d := range snap.Decisions {
		if d.Source == session.SourceTool {
			if _, item, ok := strings.Cut(d.Text, ": "); ok {
				return item
			}
		}
	}
	return ""
}

func moodEnergy(in Insights) string {
	return strings.ToLower(in.Mood) + " mood, " + strings.ToLower(in.Energy) + " energy"
}

// timeframe finds when a commitment is meant to happen.
func timeframe(text string) string {
	if m := durationPattern.FindString(text); m != "" {
		return m
	}
	if m := intent.TimeExprPattern.FindString(text); m != "" {
		return m
	}
	return defaultWhen
}

func uniqueFirst(items []string, n int) []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
		if len(out) == n {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}
