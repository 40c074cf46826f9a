// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package briefing reads the caller's day and recent calls before the
// opener is spoken.
//
// The day read (priorities, timing conflicts, free slots, energy) is always
// computed from the plan; when a model is configured it refines the
// priorities, energy and focus. The recent-call read summarizes the last
// few finalized sessions into one line for the coaching prompt.
package briefing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/tools"
)

// Energy levels of a day.
const (
	EnergyLight    = "light"
	EnergyModerate = "moderate"
	EnergyHeavy    = "heavy"
)

const (
	// SourceHeuristic and SourceLLM label how the priorities were chosen.
	SourceHeuristic = "heuristic"
	SourceLLM       = "llm"

	maxPriorities     = 3
	slotLength        = time.Hour
	defaultEventSpan  = time.Hour
	heavyBooked       = 5 * time.Hour
	heavyLoad         = 8
	lightBooked       = 2 * time.Hour
	lightLoad         = 2
	noPrioritiesFocus = "Pick the one thing that moves today forward"
)

// Analyze reads plan at now without a model.
//
// Description:
//
//	Priorities are the highest-priority tasks, topped up with the next
//	upcoming event. Conflicts are pairs of events whose times overlap.
//	Free slots are the hour-long gaps left in the workday. Energy grades
//	the day by booked time and item count.
//
// Inputs:
//
//	plan - The day plan snapshotted for the call. May be empty.
//	now - Current time in the caller's location.
//
// Outputs:
//
//	session.Briefing - Source is SourceHeuristic. Recent is left empty.
func Analyze(plan session.DayPlan, now time.Time) session.Briefing {
	b := session.Briefing{
		Priorities: Priorities(plan, now),
		Conflicts:  Conflicts(plan.Events),
		Energy:     Energy(plan, now),
		Source:     SourceHeuristic,
	}
	for _, s := range tools.FreeSlots(plan.Events, now, slotLength) {
		b.FreeSlots = append(b.FreeSlots, tools.FormatClock(s.Start)+" to "+tools.FormatClock(s.End))
	}
	b.Focus = focus(b)
	return b
}

// Priorities returns up to three items worth naming first.
func Priorities(plan session.DayPlan, now time.Time) []string {
	tasks := make([]session.Task, len(plan.Tasks))
	copy(tasks, plan.Tasks)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Priority > tasks[j].Priority })

	var out []string
	for _, t := range tasks {
		if len(out) == maxPriorities {
			return out
		}
		if text := strings.TrimSpace(t.Text); text != "" {
			out = append(out, text)
		}
	}
	if next, ok := nextEvent(plan.Events, now); ok && len(out) < maxPriorities {
		out = append(out, fmt.Sprintf("%s at %s", next.Title, tools.FormatClock(next.Start)))
	}
	return out
}

// Conflicts describes every pair of overlapping events, in start order.
func Conflicts(events []session.CalendarEvent) []string {
	sorted := sortedEvents(events)
	var out []string
	for i := range sorted {
		end := eventEnd(sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if !sorted[j].Start.Before(end) {
				break
			}
			out = append(out, fmt.Sprintf("%s overlaps %s", sorted[i].Title, sorted[j].Title))
		}
	}
	return out
}

// Energy grades the day as light, moderate or heavy.
func Energy(plan session.DayPlan, now time.Time) string {
	var booked time.Duration
	for _, ev := range plan.Events {
		if sameDay(ev.Start, now) {
			booked += eventEnd(ev).Sub(ev.Start)
		}
	}
	load := len(plan.Events) + len(plan.Tasks)
	switch {
	case booked >= heavyBooked || load >= heavyLoad:
		return EnergyHeavy
	case booked < lightBooked && load <= lightLoad:
		return EnergyLight
	default:
		return EnergyModerate
	}
}

func focus(b session.Briefing) string {
	switch {
	case len(b.Conflicts) > 0:
		return "Sort out the timing conflicts before anything else"
	case len(b.Priorities) > 0 && len(b.FreeSlots) > 0:
		return fmt.Sprintf("Use %s for %s", b.FreeSlots[0], b.Priorities[0])
	case len(b.Priorities) > 0:
		return "Start with " + b.Priorities[0]
	}
	return noPrioritiesFocus
}

func nextEvent(events []session.CalendarEvent, now time.Time) (session.CalendarEvent, bool) {
	for _, ev := range sortedEvents(events) {
		if ev.Start.After(now) {
			return ev, true
		}
	}
	return session.CalendarEvent{}, false
}

func sortedEvents(events []session.CalendarEvent) []session.CalendarEvent {
	out := make([]session.CalendarEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func eventEnd(ev session.CalendarEvent) time.Time {
	if ev.End != nil && ev.End.After(ev.Start) {
		return *ev.End
	}
	return ev.Start.Add(defaultEventSpan)
}

func sameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
