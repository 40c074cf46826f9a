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
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/AleutianAI/MorningCoach/services/llm"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/summary"
)

// =============================================================================
// Fixtures
// =============================================================================

var loc = time.FixedZone("CDT", -5*60*60)

// sevenAM is 07:00 local on a Friday.
var sevenAM = time.Date(2026, 10, 16, 7, 0, 0, 0, loc)

func at(hour, minute int) time.Time {
	return time.Date(2026, 10, 16, hour, minute, 0, 0, loc)
}

func event(title string, start time.Time, length time.Duration) session.CalendarEvent {
	end := start.Add(length)
	return session.CalendarEvent{ID: strings.ToLower(title), Title: title, Start: start, End: &end}
}

func busyPlan() session.DayPlan {
	return session.DayPlan{
		Events: []session.CalendarEvent{
			event("Standup", at(9, 0), 30*time.Minute),
			event("Dentist", at(9, 15), time.Hour),
			event("Lunch", at(12, 0), time.Hour),
		},
		Tasks: []session.Task{
			{ID: "t1", Text: "Meditate", Priority: 1},
			{ID: "t2", Text: "Quarterly report", Priority: 2},
		},
	}
}

type mockLLM struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (m *mockLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return m.Chat(ctx, nil, params)
}

func (m *mockLLM) Chat(_ context.Context, _ []llm.Message, _ llm.GenerationParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.reply, m.err
}

type fakeHistory struct {
	recs  []summary.SessionRecord
	err   error
	limit int
}

func (f *fakeHistory) RecentSessions(_ context.Context, limit int) ([]summary.SessionRecord, error) {
	f.limit = limit
	return f.recs, f.err
}

func record(from string, daysAgo int, outcome summary.Outcome, mood string) summary.SessionRecord {
	return summary.SessionRecord{
		From:      from,
		StartTime: sevenAM.AddDate(0, 0, -daysAgo),
		Summary:   summary.Summary{Outcome: outcome, MoodEnergy: mood},
	}
}

// =============================================================================
// Heuristic Analysis
// =============================================================================

func TestAnalyze_BusyDay(t *testing.T) {
	b := Analyze(busyPlan(), sevenAM)

	assert.Equal(t, SourceHeuristic, b.Source)
	assert.Equal(t, []string{"Quarterly report", "Meditate", "Standup at 9:00 AM"}, b.Priorities)
	assert.Equal(t, []string{"Standup overlaps Dentist"}, b.Conflicts)
	assert.Equal(t, []string{"10:15 AM to 12:00 PM", "1:00 PM to 6:00 PM"}, b.FreeSlots)
	assert.Equal(t, EnergyModerate, b.Energy)
	assert.Equal(t, "Sort out the timing conflicts before anything else", b.Focus)
	assert.Empty(t, b.Recent)
}

func TestAnalyze_EmptyDay(t *testing.T) {
	b := Analyze(session.DayPlan{}, sevenAM)

	assert.Empty(t, b.Priorities)
	assert.Empty(t, b.Conflicts)
	assert.Equal(t, []string{"9:00 AM to 6:00 PM"}, b.FreeSlots)
	assert.Equal(t, EnergyLight, b.Energy)
	assert.Equal(t, noPrioritiesFocus, b.Focus)
}

func TestConflicts(t *testing.T) {
	noEnd := session.CalendarEvent{Title: "Call", Start: at(14, 30)}
	tests := []struct {
		name   string
		events []session.CalendarEvent
		want   []string
	}{
		{"none", nil, nil},
		{"back to back", []session.CalendarEvent{event("A", at(9, 0), time.Hour), event("B", at(10, 0), time.Hour)}, nil},
		{"unsorted overlap", []session.CalendarEvent{event("B", at(9, 30), time.Hour), event("A", at(9, 0), time.Hour)}, []string{"A overlaps B"}},
		{"one long event", []session.CalendarEvent{
			event("Offsite", at(9, 0), 4*time.Hour),
			event("Sync", at(10, 0), 30*time.Minute),
			event("Review", at(11, 0), 30*time.Minute),
		}, []string{"Offsite overlaps Sync", "Offsite overlaps Review"}},
		{"missing end lasts an hour", []session.CalendarEvent{noEnd, event("Gym", at(15, 0), time.Hour)}, []string{"Call overlaps Gym"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Conflicts(tt.events))
		})
	}
}

func TestEnergy(t *testing.T) {
	tests := []struct {
		name string
		plan session.DayPlan
		want string
	}{
		{"empty", session.DayPlan{}, EnergyLight},
		{"two short items", session.DayPlan{Events: []session.CalendarEvent{event("Sync", at(9, 0), 30*time.Minute)}, Tasks: []session.Task{{Text: "Email"}}}, EnergyLight},
		{"long meetings", session.DayPlan{Events: []session.CalendarEvent{event("Workshop", at(9, 0), 6*time.Hour)}}, EnergyHeavy},
		{"many tasks", session.DayPlan{Tasks: make([]session.Task, 8)}, EnergyHeavy},
		{"busy plan", busyPlan(), EnergyModerate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Energy(tt.plan, sevenAM))
		})
	}
}

func TestProperty_ConflictsOnlyForOverlaps(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(t, "n")
		var events []session.CalendarEvent
		for i := 0; i < n; i++ {
			start := at(8, 0).Add(time.Duration(rapid.IntRange(0, 600).Draw(t, "start")) * time.Minute)
			length := time.Duration(rapid.IntRange(15, 120).Draw(t, "length")) * time.Minute
			events = append(events, event(string(rune('A'+i)), start, length))
		}
		want := 0
		for i := range events {
			for j := i + 1; j < len(events); j++ {
				a, b := events[i], events[j]
				if a.Start.Before(*b.End) && b.Start.Before(*a.End) {
					want++
				}
			}
		}
		if got := len(Conflicts(events)); got != want {
			t.Fatalf("got %d conflicts, want %d", got, want)
		}
	})
}

// =============================================================================
// Recent Context
// =============================================================================

func TestRecentContext(t *testing.T) {
	const caller = "+15550001111"
	tests := []struct {
		name string
		recs []summary.SessionRecord
		want string
	}{
		{"first call", nil, ""},
		{"too old", []summary.SessionRecord{record(caller, 8, summary.OutcomeProductive, "high")}, ""},
		{"strong execution", []summary.SessionRecord{
			record(caller, 1, summary.OutcomeProductive, "high"),
			record(caller, 2, summary.OutcomeProductive, "focused"),
			record(caller, 3, summary.OutcomePlanning, "low"),
		}, "Recent pattern: strong execution. Last session: productive."},
		{"low energy", []summary.SessionRecord{
			record(caller, 1, summary.OutcomePlanning, "low energy"),
			record(caller, 2, summary.OutcomeAdjustment, "Low, tired"),
		}, "Recent pattern: energy management needed. Last session: planning."},
		{"other callers ignored", []summary.SessionRecord{
			record("+15559990000", 1, summary.OutcomeProductive, "high"),
			record(caller, 2, summary.OutcomeBrief, "neutral"),
		}, "Recent pattern: steady progress. Last session: brief."},
		{"newest decides last session", []summary.SessionRecord{
			record(caller, 3, summary.OutcomePlanning, ""),
			record(caller, 1, "", ""),
		}, "Recent pattern: steady progress. Last session: unknown."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecentContext(tt.recs, caller, sevenAM))
		})
	}
}

func TestRecentContext_OnlyThreeNewestCount(t *testing.T) {
	recs := []summary.SessionRecord{
		record("", 1, summary.OutcomePlanning, ""),
		record("", 2, summary.OutcomePlanning, ""),
		record("", 3, summary.OutcomeProductive, ""),
		record("", 4, summary.OutcomeProductive, ""),
		record("", 5, summary.OutcomeProductive, ""),
	}
	assert.Equal(t, "Recent pattern: steady progress. Last session: planning.", RecentContext(recs, "", sevenAM))
}

// =============================================================================
// Analyzer
// =============================================================================

func TestAnalyzer_ModelRefinesPriorities(t *testing.T) {
	mock := &mockLLM{reply: "Here you go:\n```json\n" +
		`{"priority_items": ["Quarterly report", "Dentist", "Gym", "Extra"], "energy_assessment": "Heavy", "focus_recommendation": "Report before the dentist"}` +
		"\n```"}
	history := &fakeHistory{recs: []summary.SessionRecord{record("+1555", 1, summary.OutcomeProductive, "high")}}
	a := NewAnalyzer(mock, history, Config{})

	b := a.Prepare(context.Background(), "+1555", busyPlan(), sevenAM)

	assert.Equal(t, SourceLLM, b.Source)
	assert.Equal(t, []string{"Quarterly report", "Dentist", "Gym"}, b.Priorities)
	assert.Equal(t, EnergyHeavy, b.Energy)
	assert.Equal(t, "Report before the dentist", b.Focus)
	assert.Equal(t, []string{"Standup overlaps Dentist"}, b.Conflicts, "conflicts stay computed")
	assert.Len(t, b.FreeSlots, 2)
	assert.Equal(t, "Recent pattern: strong execution. Last session: productive.", b.Recent)
	assert.Equal(t, DefaultHistoryDepth, history.limit)
}

func TestAnalyzer_FallsBackToHeuristic(t *testing.T) {
	tests := []struct {
		name string
		mock *mockLLM
	}{
		{"model error", &mockLLM{err: errors.New("boom")}},
		{"not json", &mockLLM{reply: "You have a busy day."}},
		{"no priorities", &mockLLM{reply: `{"priority_items": [], "energy_assessment": "light"}`}},
		{"bad energy", &mockLLM{reply: `{"priority_items": ["Report"], "energy_assessment": "extreme"}`}},
	}
	want := Analyze(busyPlan(), sevenAM)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewAnalyzer(tt.mock, nil, Config{}).Prepare(context.Background(), "", busyPlan(), sevenAM)
			assert.Equal(t, want, b)
			assert.Equal(t, 1, tt.mock.calls)
		})
	}
}

func TestAnalyzer_SkipsModelForEmptyPlan(t *testing.T) {
	mock := &mockLLM{reply: `{"priority_items": ["x"], "energy_assessment": "light"}`}
	b := NewAnalyzer(mock, nil, Config{}).Prepare(context.Background(), "", session.DayPlan{}, sevenAM)

	assert.Equal(t, SourceHeuristic, b.Source)
	assert.Equal(t, 0, mock.calls)
}

func TestAnalyzer_HistoryErrorLeavesRecentEmpty(t *testing.T) {
	history := &fakeHistory{err: errors.New("closed")}
	b := NewAnalyzer(nil, history, Config{}).Prepare(context.Background(), "", busyPlan(), sevenAM)

	assert.Empty(t, b.Recent)
	assert.Equal(t, SourceHeuristic, b.Source)
	require.NotEmpty(t, b.Priorities)
}
