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
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// =============================================================================
// Test Helpers
// =============================================================================

type line struct {
	role session.Role
	text string
	kind session.TurnKind
}

// buildSnapshot replays lines through a real session so the snapshot has
// the same shape the turn handler sees.
func buildSnapshot(t fataler, lines []line, decisions ...string) session.Snapshot {
	store := session.NewStore()
	sess, _, err := store.Open("CA-test", "+1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, l := range lines {
		kind := l.kind
		if kind == "" {
			kind = session.KindConversation
		}
		if err := sess.AppendTurn(l.role, l.text, kind); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	for _, d := range decisions {
		if err := sess.RecordDecision(d, session.SourceCommitment); err != nil {
			t.Fatalf("decision: %v", err)
		}
	}
	return sess.Snapshot()
}

// fataler is satisfied by both *testing.T and *rapid.T.
type fataler interface {
	Fatalf(format string, args ...any)
}

func user(text string) line      { return line{role: session.RoleUser, text: text} }
func assistant(text string) line { return line{role: session.RoleAssistant, text: text} }

// =============================================================================
// End-of-call Tests
// =============================================================================

func TestIsClosingPhrase(t *testing.T) {
	closing := []string{
		"That's it.", "that’s it", "I'm done", "im done", "Bye!", "goodbye",
		"no", "Nope.", "all set", "ok bye", "Sounds good, thanks.", "thank you",
		"Thanks, bye", "I gotta go", "ok I have to go now", "talk tomorrow",
		"please hang up", "perfect",
	}
	for _, u := range closing {
		t.Run(u, func(t *testing.T) {
			assert.True(t, IsClosingPhrase(u))
		})
	}

	notClosing := []string{
		"", "no I want to add a task", "I think that's it for the report section",
		"tomorrow I have a dentist appointment", "good morning", "okay so first I need to email Sam",
	}
	for _, u := range notClosing {
		t.Run("not/"+u, func(t *testing.T) {
			assert.False(t, IsClosingPhrase(u))
		})
	}
}

func TestDetectEndOfCall(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("closing phrase", func(t *testing.T) {
		snap := buildSnapshot(t, []line{assistant("Morning."), user("that's it")})
		d := DetectEndOfCall(snap, "that's it", cfg)
		assert.Equal(t, EndDecision{End: true, Reason: EndClosingPhrase}, d)
	})

	t.Run("assistant closing language", func(t *testing.T) {
		snap := buildSnapshot(t, []line{
			assistant("Morning."), user("write the report"),
			assistant("Great plan. Anything else?"), user("hmm maybe one more"),
		})
		d := DetectEndOfCall(snap, "hmm maybe one more", cfg)
		assert.Equal(t, EndAssistantClosing, d.Reason)
	})

	t.Run("hard cap regardless of content", func(t *testing.T) {
		var lines []line
		for i := 0; i < 9; i++ {
			lines = append(lines, assistant(fmt.Sprintf("question %d", i)), user("more stuff to discuss"))
		}
		snap := buildSnapshot(t, lines)
		require.Equal(t, 18, snap.Transcript.DialogueLen())
		d := DetectEndOfCall(snap, "more stuff to discuss", cfg)
		assert.Equal(t, EndDecision{End: true, Reason: EndHardCap}, d)
	})

	t.Run("commitment cap", func(t *testing.T) {
		var lines []line
		for i := 0; i < 5; i++ {
			lines = append(lines, assistant(fmt.Sprintf("question %d", i)), user("talking it through"))
		}
		snap := buildSnapshot(t, lines, "I will write the report")
		d := DetectEndOfCall(snap, "talking it through", cfg)
		assert.Equal(t, EndCommitmentCap, d.Reason)

		noDecisions := buildSnapshot(t, lines)
		assert.False(t, DetectEndOfCall(noDecisions, "talking it through", cfg).End)
	})

	t.Run("system turns are not counted", func(t *testing.T) {
		lines := []line{{role: session.RoleSystem, text: "persona"}}
		for i := 0; i < 8; i++ {
			lines = append(lines, assistant("q"), user("a reply"))
		}
		snap := buildSnapshot(t, lines)
		assert.False(t, DetectEndOfCall(snap, "a reply", cfg).End)
	})
}

// TestProperty_HardCapAlwaysEnds checks that any transcript above the hard
// cap ends regardless of what the caller says.
func TestProperty_HardCapAlwaysEnds(t *testing.T) {
	cfg := DefaultConfig()
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(cfg.HardTurnCap+1, cfg.HardTurnCap+20).Draw(rt, "turns")
		utterance := rapid.StringMatching(`[a-z ]{0,40}`).Draw(rt, "utterance")
		var lines []line
		for i := 0; i < n; i++ {
			if i%2 == 0 {
				lines = append(lines, assistant("what next"))
			} else {
				lines = append(lines, user("something"))
			}
		}
		snap := buildSnapshot(rt, lines)
		if d := DetectEndOfCall(snap, utterance, cfg); !d.End {
			rt.Fatalf("expected end at %d turns for %q", n, utterance)
		}
	})
}

// =============================================================================
// Tool Intent Tests
// =============================================================================

func TestClassifyTool(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		action    Action
		title     string
		timeExpr  string
		search    string
		duration  int
	}{
		{
			name:      "todo task",
			utterance: "Add buy groceries to my todo",
			action:    ActionAddTask,
			title:     "buy groceries",
		},
		{
			name:      "remind me",
			utterance: "Remind me to call mom",
			action:    ActionAddTask,
			title:     "call mom",
		},
		{
			name:      "task prefix",
			utterance: "Can you create a task to email Joe",
			action:    ActionAddTask,
			title:     "email Joe",
		},
		{
			name:      "schedule with time",
			utterance: "Schedule a dentist appointment tomorrow at 3pm",
			action:    ActionAddEvent,
			title:     "dentist appointment",
			timeExpr:  "tomorrow at 3pm",
		},
		{
			name:      "add to calendar",
			utterance: "Put lunch with Sam on my calendar at noon",
			action:    ActionAddEvent,
			title:     "lunch with Sam",
			timeExpr:  "noon",
		},
		{
			name:      "add to calendar with duration",
			utterance: "add gym to calendar at 6 for 45 minutes",
			action:    ActionAddEvent,
			title:     "gym",
			timeExpr:  "at 6",
			duration:  45,
		},
		{
			name:      "schedule without details",
			utterance: "schedule",
			action:    ActionAddEvent,
		},
		{
			name:      "query calendar",
			utterance: "What's on my calendar today?",
			action:    ActionQueryCalendar,
		},
		{
			name:      "schedule as a noun",
			utterance: "what's my schedule look like",
			action:    ActionQueryCalendar,
		},
		{
			name:      "reschedule",
			utterance: "move my dentist appointment to 3pm",
			action:    ActionRescheduleEvent,
			search:    "dentist",
			timeExpr:  "3pm",
		},
		{
			name:      "cancel",
			utterance: "Cancel my dentist appointment",
			action:    ActionCancelEvent,
			search:    "dentist",
		},
		{
			name:      "cancel generic noun only",
			utterance: "cancel my meeting",
			action:    ActionCancelEvent,
			search:    "meeting",
		},
		{
			name:      "free slots",
			utterance: "When am I free for 30 minutes?",
			action:    ActionQueryFreeSlots,
			duration:  30,
		},
		{
			name:      "free slots an hour",
			utterance: "find me time for an hour of deep work",
			action:    ActionQueryFreeSlots,
			duration:  60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ti, ok := ClassifyTool(tt.utterance)
			require.True(t, ok, "expected a tool intent for %q", tt.utterance)
			assert.Equal(t, tt.action, ti.Action)
			assert.Equal(t, tt.title, ti.Title)
			assert.Equal(t, tt.timeExpr, ti.TimeExpr)
			assert.Equal(t, tt.search, ti.Search)
			assert.Equal(t, tt.duration, ti.DurationMinutes)
		})
	}
}

func TestClassifyTool_ScheduleNounReadsCalendar(t *testing.T) {
	for _, u := range []string{
		"Can you check my schedule?",
		"Let's go over my schedule",
		"What does the schedule look like",
		"look at today's schedule with me",
		"how busy is my schedule",
		"my schedules are a mess",
	} {
		t.Run(u, func(t *testing.T) {
			ti, ok := ClassifyTool(u)
			require.True(t, ok)
			assert.Equal(t, ActionQueryCalendar, ti.Action)
		})
	}
}

func TestProperty_ScheduleAlwaysUsesTool(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		before := rapid.StringMatching(`[a-z ]{0,30}`).Draw(rt, "before")
		after := rapid.StringMatching(`[a-z ]{0,30}`).Draw(rt, "after")
		u := before + " schedule " + after
		if _, ok := ClassifyTool(u); !ok {
			rt.Fatalf("%q went to the LLM", u)
		}
	})
}

func TestClassifyTool_NoTool(t *testing.T) {
	for _, u := range []string{
		"",
		"I feel pretty good today",
		"I'm going to add more energy to my workouts",
		"I need to move forward on the launch",
	} {
		t.Run(u, func(t *testing.T) {
			_, ok := ClassifyTool(u)
			assert.False(t, ok)
		})
	}
}

func TestIsCommitment(t *testing.T) {
	assert.True(t, IsCommitment("I will finish the deck by noon"))
	assert.True(t, IsCommitment("I'm going to run at six"))
	assert.False(t, IsCommitment("the weather is nice"))
}

// =============================================================================
// Phase Tests
// =============================================================================

func TestNextPhase(t *testing.T) {
	cfg := DefaultConfig()
	early := buildSnapshot(t, []line{assistant("Morning."), user("the priority is the deck")})
	assert.Equal(t, session.PhaseExploration, NextPhase(early, "the priority is the deck", cfg))

	three := []line{
		assistant("Morning."), user("hi"),
		assistant("What's up?"), user("busy day"),
		assistant("Tell me more."),
	}
	cases := []struct {
		utterance string
		want      session.Phase
	}{
		{"my main focus is the launch", session.PhasePrioritization},
		{"I will do it at ten", session.PhaseCommitment},
		{"I'm ready", session.PhaseWrapUp},
		{"the weather is odd", session.PhaseExploration},
	}
	for _, c := range cases {
		t.Run(c.utterance, func(t *testing.T) {
			snap := buildSnapshot(t, append(append([]line{}, three...), user(c.utterance)))
			assert.Equal(t, c.want, NextPhase(snap, c.utterance, cfg))
		})
	}

	t.Run("many exchanges wrap up", func(t *testing.T) {
		var lines []line
		for i := 0; i < 9; i++ {
			lines = append(lines, assistant("q"), user("hmm"))
		}
		snap := buildSnapshot(t, lines)
		assert.Equal(t, session.PhaseWrapUp, NextPhase(snap, "hmm", cfg))
	})
}

// =============================================================================
// Loop Detector Tests
// =============================================================================

func TestDetectLoop(t *testing.T) {
	cfg := DefaultConfig()
	loopy := []line{
		assistant("What's your top priority?"), user("I don't know really, there is a lot going on"),
		assistant("What feels most important?"), user("probably the quarterly planning document"),
		assistant("Where should your focus go first?"),
	}

	t.Run("fresh angle", func(t *testing.T) {
		snap := buildSnapshot(t, append(loopy, user("still thinking about it honestly")))
		lb, ok := DetectLoop(snap, cfg, rand.New(rand.NewSource(7)))
		require.True(t, ok)
		assert.Equal(t, StrategyFreshAngle, lb.Strategy)
		assert.True(t, IsLoopBreakText(lb.Text))
		assert.NotRegexp(t, loopThemePattern, lb.Text)
	})

	t.Run("low engagement simplifies", func(t *testing.T) {
		snap := buildSnapshot(t, []line{
			assistant("What's the priority?"), user("dunno"),
			assistant("What's important today?"), user("eh"),
		})
		lb, ok := DetectLoop(snap, cfg, nil)
		require.True(t, ok)
		assert.Equal(t, StrategySimplify, lb.Strategy)
	})

	t.Run("deep conversation forces decision", func(t *testing.T) {
		var lines []line
		for i := 0; i < 6; i++ {
			lines = append(lines, assistant("Tell me more about that."), user("well there is a lot going on this week"))
		}
		lines = append(lines,
			assistant("What's the priority?"), user("there are several competing deadlines"),
			assistant("Which is most important?"), user("they all feel equally pressing to me"))
		snap := buildSnapshot(t, lines)
		lb, ok := DetectLoop(snap, cfg, nil)
		require.True(t, ok)
		assert.Equal(t, StrategyForceDecision, lb.Strategy)
	})

	t.Run("no loop below threshold", func(t *testing.T) {
		snap := buildSnapshot(t, []line{assistant("What's the priority?"), user("the deck"), assistant("When will you start?")})
		_, ok := DetectLoop(snap, cfg, nil)
		assert.False(t, ok)
	})

	t.Run("previous loop break resets the window", func(t *testing.T) {
		snap := buildSnapshot(t, []line{
			assistant("What's the priority?"), user("not sure yet to be honest with you"),
			assistant("What's important?"), user("a few different things are on my mind"),
			{role: session.RoleAssistant, text: simplifyText, kind: session.KindLoopBreak},
			user("ok the report"),
		})
		_, ok := DetectLoop(snap, cfg, nil)
		assert.False(t, ok)
	})
}

func TestClassifier_Spans(t *testing.T) {
	c := NewClassifier(Config{}, rand.NewSource(1))
	assert.Equal(t, DefaultConfig(), c.Config())

	snap := buildSnapshot(t, []line{assistant("Morning."), user("bye")})
	assert.True(t, c.EndOfCall(context.Background(), snap, "bye").End)

	ti, ok := c.Tool(context.Background(), "add buy milk to my list")
	require.True(t, ok)
	assert.Equal(t, ActionAddTask, ti.Action)

	_, loop := c.Loop(context.Background(), snap)
	assert.False(t, loop)
	assert.Equal(t, session.PhaseExploration, c.Phase(snap, "bye"))
	assert.True(t, c.Commitment("I promise"))
}
