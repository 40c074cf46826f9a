// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// Tool Intent Types
// =============================================================================

// Action is a side-effecting or querying operation the coach can perform.
type Action string

const (
	ActionAddTask         Action = "add_task"
	ActionAddEvent        Action = "add_event"
	ActionRescheduleEvent Action = "reschedule_event"
	ActionCancelEvent     Action = "cancel_event"
	ActionQueryCalendar   Action = "query_calendar"
	ActionQueryFreeSlots  Action = "query_free_slots"
)

// AllActions returns every action in rule precedence order.
func AllActions() []Action {
	return []Action{
		ActionAddEvent,
		ActionAddTask,
		ActionQueryCalendar,
		ActionRescheduleEvent,
		ActionCancelEvent,
		ActionQueryFreeSlots,
	}
}

// ToolIntent is a structured request extracted from a caller utterance.
type ToolIntent struct {
	Action Action

	// Title is the task text or event title for add actions.
	Title string

	// TimeExpr is the raw time phrase, such as "tomorrow at 9" or "3pm".
	// For reschedule it is the new time.
	TimeExpr string

	// DurationMinutes is zero when the caller gave no duration.
	DurationMinutes int

	// Search is the text used to find an existing event for cancel and
	// reschedule.
	Search string

	Utterance string
}

// =============================================================================
// Patterns
// =============================================================================

// toolNeedPattern is the coarse gate. An utterance that passes it still goes
// to the LLM when no extraction rule matches.
var toolNeedPattern = regexp.MustCompile(`(?i)\b(add|create|schedule|book|remind|put|todo|to-do|task|tasks|cancel|delete|remove|reschedule|move|push|calendar|agenda|meetings?|free|availability)\b`)

var (
	addVerbPattern      = regexp.MustCompile(`(?i)\b(add|put|create|book|set up|block)\b`)
	scheduleVerbPattern = regexp.MustCompile(`(?i)(^|[^\w'])schedule\b`)
	scheduleNounPattern = regexp.MustCompile(`(?i)\b(my|the|your|today'?s|tomorrow'?s)\s+schedule\b`)
	eventNounPattern    = regexp.MustCompile(`(?i)\b(calendar|event|meeting|appointment)\b`)
	taskNounPattern     = regexp.MustCompile(`(?i)\b(to-?do|to do list|task|tasks|list)\b`)
	remindMePattern     = regexp.MustCompile(`(?i)\bremind me\b`)
	queryCalPattern     = regexp.MustCompile(`(?i)(what'?s|what is) (on )?(my|the) (calendar|schedule|agenda)|what do i have (today|on|going on|this)|(my|today'?s) (calendar|schedule|agenda) (look|for today|today)|any meetings|what meetings|read (me )?my (calendar|schedule)`)
	rescheduleVerb      = regexp.MustCompile(`(?i)\breschedule\b`)
	moveVerbPattern     = regexp.MustCompile(`(?i)\b(move|push|shift)\b`)
	cancelVerbPattern   = regexp.MustCompile(`(?i)\bcancel\b`)
	deleteVerbPattern   = regexp.MustCompile(`(?i)\b(delete|remove|drop|clear)\b`)
	scheduleWordPattern = regexp.MustCompile(`(?i)\bschedules?\b`)
	freeSlotsPattern    = regexp.MustCompile(`(?i)\b(when am i free|when i'?m free|free time|free slots?|open slots?|availability|when can i fit|find (me )?(some )?time)\b`)
)

// TimeExprPattern matches the time phrases the tool executor can parse.
var TimeExprPattern = regexp.MustCompile(`(?i)(?:\b(?:tomorrow|today)\s+)?(?:\bat\s+\d{1,2}(?::\d{2})?(?:\s*(?:am|pm|a\.m\.|p\.m\.))?|\b\d{1,2}:\d{2}(?:\s*(?:am|pm|a\.m\.|p\.m\.))?|\b\d{1,2}\s*(?:am|pm|a\.m\.|p\.m\.)|\bnoon\b)|\bin\s+(?:\d+|an?|one)\s+(?:hours?|hrs?|minutes?|mins?)\b|\btomorrow\b`)

var (
	durationPattern     = regexp.MustCompile(`(?i)\b(?:for\s+)?(\d+)\s*(minutes?|mins?|hours?|hrs?)\b`)
	durationWordPattern = regexp.MustCompile(`(?i)\b(?:for\s+)?(half an hour|an hour|one hour|a couple (?:of )?hours)\b`)
	tomorrowPattern     = regexp.MustCompile(`(?i)\btomorrow\b`)

	leadInPattern      = regexp.MustCompile(`(?i)^\s*(hey|ok|okay|so|um|uh|please|can you|could you|would you|will you|i need you to|i need to|i want to|i'd like to|let's|lets|go ahead and|yeah|yes)[\s,]+`)
	verbPattern        = regexp.MustCompile(`(?i)^\s*(remind me to|remind me|remind|add|put|create|make|set up|schedule|book|block off|block|cancel|delete|remove|drop|clear|reschedule|move|push|shift)\b\s*`)
	taskPrefixPattern  = regexp.MustCompile(`(?i)^\s*(a|an|the)?\s*(new\s+)?(task|todo|to-do|reminder|item)\b\s*(to|for|called|that says)?\s*`)
	taskSuffixPattern  = regexp.MustCompile(`(?i)\s*\b(to|on|onto|in|into)\s+(my|the)\s+(to-?do|to do|task|tasks|list)(\s+list)?\s*$`)
	calSuffixPattern   = regexp.MustCompile(`(?i)\s*\b(to|on|onto|in|into|from)\s+((my|the)\s+)?calendar\b`)
	articlePattern     = regexp.MustCompile(`(?i)^\s*(a|an|the|my|that|this|our)\s+`)
	dayWordPattern     = regexp.MustCompile(`(?i)\b(today|tomorrow|this (morning|afternoon|evening))\b`)
	danglingPattern    = regexp.MustCompile(`(?i)\s*\b(to|until|till|for|at|on|from|with)\s*$`)
	genericNounPattern = regexp.MustCompile(`(?i)\b(appointment|meeting|event|call|session)\b`)
	commitmentPattern  = regexp.MustCompile(`(?i)\b(will|going to|gonna|plan to|commit|promise)\b`)
)

// toolRules maps utterances to actions.
// Order matters - first match wins.
var toolRules = []struct {
	action Action
	match  func(s string) bool
}{
	{ActionAddEvent, func(s string) bool {
		if scheduleVerbPattern.MatchString(s) && !scheduleNounPattern.MatchString(s) && !rescheduleVerb.MatchString(s) {
			return true
		}
		return addVerbPattern.MatchString(s) && eventNounPattern.MatchString(s)
	}},
	{ActionAddTask, func(s string) bool {
		if remindMePattern.MatchString(s) {
			return true
		}
		return addVerbPattern.MatchString(s) && taskNounPattern.MatchString(s)
	}},
	{ActionQueryCalendar, queryCalPattern.MatchString},
	{ActionRescheduleEvent, func(s string) bool {
		if rescheduleVerb.MatchString(s) {
			return true
		}
		return moveVerbPattern.MatchString(s) && (eventNounPattern.MatchString(s) || TimeExprPattern.MatchString(s))
	}},
	{ActionCancelEvent, func(s string) bool {
		if cancelVerbPattern.MatchString(s) {
			return true
		}
		return deleteVerbPattern.MatchString(s) && eventNounPattern.MatchString(s)
	}},
	{ActionQueryFreeSlots, freeSlotsPattern.MatchString},
	// Any other mention of the schedule ("check my schedule", "go over the
	// schedule") reads it back.
	{ActionQueryCalendar, scheduleWordPattern.MatchString},
}

// =============================================================================
// Classification
// =============================================================================

// NeedsTool reports whether the utterance might ask for a tool action.
func NeedsTool(utterance string) bool {
	s := foldQuotes(utterance)
	return toolNeedPattern.MatchString(s) || scheduleWordPattern.MatchString(s) ||
		freeSlotsPattern.MatchString(s) || queryCalPattern.MatchString(s)
}

// ClassifyTool extracts a ToolIntent from the caller's utterance.
//
// Description:
//
//	Applies the NeedsTool gate, then the ordered toolRules. Precedence:
//	add_event, add_task, query_calendar, reschedule_event, cancel_event,
//	query_free_slots, then query_calendar for any remaining mention of
//	"schedule". Returns false when the gate fails or no rule
//	matches, in which case the turn goes to the LLM.
//
// Inputs:
//
//	utterance - Raw caller speech.
//
// Outputs:
//
//	ToolIntent - Extracted parameters.
//	bool - True when a tool action should run.
func ClassifyTool(utterance string) (ToolIntent, bool) {
	text := strings.TrimSpace(foldQuotes(utterance))
	if text == "" || !NeedsTool(text) {
		return ToolIntent{}, false
	}
	for _, rule := range toolRules {
		if rule.match(text) {
			return extractParams(rule.action, text), true
		}
	}
	return ToolIntent{}, false
}

// IsCommitment reports whether the caller's words commit to something.
func IsCommitment(utterance string) bool {
	return commitmentPattern.MatchString(foldQuotes(utterance))
}

// =============================================================================
// Parameter Extraction
// =============================================================================

func extractParams(action Action, text string) ToolIntent {
	ti := ToolIntent{Action: action, Utterance: text}

	work := text
	if loc := TimeExprPattern.FindStringIndex(work); loc != nil {
		ti.TimeExpr = strings.ToLower(strings.TrimSpace(work[loc[0]:loc[1]]))
		work = work[:loc[0]] + " " + work[loc[1]:]
		if !strings.Contains(ti.TimeExpr, "tomorrow") && tomorrowPattern.MatchString(work) {
			ti.TimeExpr = "tomorrow " + ti.TimeExpr
		}
	}
	work, ti.DurationMinutes = extractDuration(work)

	switch action {
	case ActionAddTask:
		ti.Title = taskTitle(work)
	case ActionAddEvent:
		ti.Title = eventTitle(work)
	case ActionRescheduleEvent, ActionCancelEvent:
		ti.Search = searchText(work)
	}
	return ti
}

func extractDuration(work string) (string, int) {
	if m := durationPattern.FindStringSubmatchIndex(work); m != nil {
		n, err := strconv.Atoi(work[m[2]:m[3]])
		if err == nil && n > 0 {
			unit := strings.ToLower(work[m[4]:m[5]])
			if strings.HasPrefix(unit, "h") {
				n *= 60
			}
			return work[:m[0]] + " " + work[m[1]:], n
		}
	}
	if m := durationWordPattern.FindStringSubmatchIndex(work); m != nil {
		minutes := 60
		switch phrase := strings.ToLower(work[m[2]:m[3]]); {
		case strings.HasPrefix(phrase, "half"):
			minutes = 30
		case strings.HasPrefix(phrase, "a couple"):
			minutes = 120
		}
		return work[:m[0]] + " " + work[m[1]:], minutes
	}
	return work, 0
}

func stripLeadIn(s string) string {
	for {
		next := leadInPattern.ReplaceAllString(s, "")
		if next == s {
			return s
		}
		s = next
	}
}

func taskTitle(work string) string {
	s := stripLeadIn(work)
	s = verbPattern.ReplaceAllString(s, "")
	s = taskPrefixPattern.ReplaceAllString(s, "")
	s = taskSuffixPattern.ReplaceAllString(cleanSpaces(s), "")
	return tidy(s)
}

func eventTitle(work string) string {
	s := stripLeadIn(work)
	s = verbPattern.ReplaceAllString(s, "")
	s = calSuffixPattern.ReplaceAllString(s, " ")
	s = dayWordPattern.ReplaceAllString(s, " ")
	s = articlePattern.ReplaceAllString(cleanSpaces(s), "")
	s = danglingPattern.ReplaceAllString(cleanSpaces(s), "")
	return tidy(s)
}

// searchText reduces an utterance to the words that identify an event.
// Generic nouns such as "appointment" are dropped unless nothing else is
// left.
func searchText(work string) string {
	s := stripLeadIn(work)
	s = verbPattern.ReplaceAllString(s, "")
	s = calSuffixPattern.ReplaceAllString(s, " ")
	s = dayWordPattern.ReplaceAllString(s, " ")
	s = cleanSpaces(s)
	for {
		next := danglingPattern.ReplaceAllString(articlePattern.ReplaceAllString(s, ""), "")
		if next == s {
			break
		}
		s = cleanSpaces(next)
	}
	s = tidy(s)
	if stripped := tidy(genericNounPattern.ReplaceAllString(s, " ")); stripped != "" {
		return stripped
	}
	return s
}

func cleanSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func tidy(s string) string {
	s = cleanSpaces(s)
	return strings.Trim(s, " .,!?;:\"'")
}

func foldQuotes(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'", "“", `"`, "”", `"`).Replace(s)
}
