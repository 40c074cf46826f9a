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
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/summary"
)

const (
	// RecentWindow is how far back finished calls count as recent.
	RecentWindow = 7 * 24 * time.Hour

	// RecentCalls is how many recent calls feed the pattern.
	RecentCalls = 3
)

// Recent patterns.
const (
	PatternStrongExecution = "strong execution"
	PatternLowEnergy       = "energy management needed"
	PatternSteady          = "steady progress"
)

// RecentContext summarizes the caller's recent calls in one line.
//
// Description:
//
//	Keeps records from from (every record when from is empty) that
//	started within RecentWindow of now, newest first, and looks at the
//	first RecentCalls. The pattern is strong execution when most outcomes
//	were productive, energy management when most moods were low, and
//	steady progress otherwise.
//
// Outputs:
//
//	string - "Recent pattern: <pattern>. Last session: <outcome>." or ""
//	when there is no recent call.
func RecentContext(recs []summary.SessionRecord, from string, now time.Time) string {
	var recent []summary.SessionRecord
	for _, r := range recs {
		if from != "" && r.From != "" && r.From != from {
			continue
		}
		if now.Sub(r.StartTime) > RecentWindow || r.StartTime.After(now) {
			continue
		}
		recent = append(recent, r)
	}
	if len(recent) == 0 {
		return ""
	}
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].StartTime.After(recent[j].StartTime) })
	if len(recent) > RecentCalls {
		recent = recent[:RecentCalls]
	}

	last := string(recent[0].Summary.Outcome)
	if last == "" {
		last = "unknown"
	}
	return "Recent pattern: " + Pattern(recent) + ". Last session: " + last + "."
}

// Pattern names the trend across recs.
func Pattern(recs []summary.SessionRecord) string {
	var outcomes, productive, moods, low int
	for _, r := range recs {
		if r.Summary.Outcome != "" {
			outcomes++
			if r.Summary.Outcome == summary.OutcomeProductive {
				productive++
			}
		}
		if m := strings.ToLower(r.Summary.MoodEnergy); m != "" {
			moods++
			if strings.Contains(m, "low") {
				low++
			}
		}
	}
	switch {
	case outcomes > 0 && productive*2 > outcomes:
		return PatternStrongExecution
	case moods > 0 && low*2 > moods:
		return PatternLowEnergy
	}
	return PatternSteady
}
