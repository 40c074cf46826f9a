// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// =============================================================================
// Test Helpers
// =============================================================================

// fakeClock returns a clock that advances one second per call.
func fakeClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 3, 9, 7, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func openSession(t *testing.T) (*Store, *CallSession) {
	t.Helper()
	store := NewStore(WithClock(fakeClock()))
	sess, created, err := store.Open("CA100", "+15550001111")
	require.NoError(t, err)
	require.True(t, created)
	return store, sess
}

func samplePlan() DayPlan {
	end := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	return DayPlan{
		Events: []CalendarEvent{{ID: "ev1", Title: "Dentist", Start: end.Add(-time.Hour), End: &end}},
		Tasks:  []Task{{ID: "t1", Text: "Meditate", Priority: 1}},
	}
}

// =============================================================================
// Transcript Tests
// =============================================================================

func TestTranscript_WindowsAndCounts(t *testing.T) {
	var tr Transcript
	tr.Append(Turn{Role: RoleSystem, Text: "persona"})
	tr.Append(Turn{Role: RoleAssistant, Text: "Morning."})
	tr.Append(Turn{Role: RoleUser, Text: "hi"})
	tr.Append(Turn{Role: RoleAssistant, Text: "What's first?"})
	tr.Append(Turn{Role: RoleUser, Text: "email"})

	assert.Equal(t, 5, tr.Len())
	assert.Equal(t, 4, tr.DialogueLen())
	assert.Equal(t, 2, tr.UserCount())

	last, ok := tr.LastAssistant()
	require.True(t, ok)
	assert.Equal(t, "What's first?", last.Text)

	t.Run("LastN keeps order", func(t *testing.T) {
		got := tr.LastN(2)
		require.Len(t, got, 2)
		assert.Equal(t, "What's first?", got[0].Text)
		assert.Equal(t, "email", got[1].Text)
	})

	t.Run("LastByRole", func(t *testing.T) {
		got := tr.LastByRole(RoleAssistant, 3)
		require.Len(t, got, 2)
		assert.Equal(t, "Morning.", got[0].Text)
	})

	t.Run("DialogueWindow skips system", func(t *testing.T) {
		got := tr.DialogueWindow(10)
		require.Len(t, got, 4)
		assert.Equal(t, RoleAssistant, got[0].Role)
	})

	t.Run("non-positive n", func(t *testing.T) {
		assert.Nil(t, tr.LastN(0))
		assert.Nil(t, tr.LastByRole(RoleUser, -1))
	})
}

// =============================================================================
// CallSession Tests
// =============================================================================

func TestCallSession_AppendAfterEnd(t *testing.T) {
	_, sess := openSession(t)
	require.NoError(t, sess.AppendTurn(RoleUser, "hello", KindConversation))

	assert.True(t, sess.End("closing_phrase"))
	assert.False(t, sess.End("status_completed"), "second end must be a no-op")

	err := sess.AppendTurn(RoleUser, "are you there", KindConversation)
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.ErrorIs(t, sess.RecordDecision("I will run", SourceCommitment), ErrSessionEnded)

	snap := sess.Snapshot()
	assert.Equal(t, 1, snap.Transcript.Len())
	assert.Equal(t, PhaseEnded, snap.Phase)
	assert.Equal(t, "closing_phrase", snap.EndReason)
}

func TestCallSession_SetPhase(t *testing.T) {
	_, sess := openSession(t)

	require.NoError(t, sess.SetPhase(PhaseCommitment))
	require.NoError(t, sess.SetPhase(PhaseCommitment))
	assert.Equal(t, PhaseCommitment, sess.Phase())

	var cfgErr *ConfigurationError
	err := sess.SetPhase(Phase("daydreaming"))
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "phase", cfgErr.Field)

	assert.True(t, errors.As(sess.SetPhase(PhaseEnded), &cfgErr), "ended is reachable only via End")
	assert.Equal(t, PhaseCommitment, sess.Phase())
}

func TestCallSession_SnapshotDayPlanFirstWins(t *testing.T) {
	_, sess := openSession(t)
	plan := samplePlan()

	require.NoError(t, sess.SnapshotDayPlan(plan))
	err := sess.SnapshotDayPlan(DayPlan{Tasks: []Task{{ID: "other", Text: "Other"}}})
	assert.ErrorIs(t, err, ErrPlanAlreadySnapshotted)

	// Mutating the caller's copy must not leak into the session.
	plan.Events[0].Title = "Changed"
	*plan.Events[0].End = time.Time{}

	snap := sess.Snapshot()
	require.Len(t, snap.DayPlan.Events, 1)
	assert.Equal(t, "Dentist", snap.DayPlan.Events[0].Title)
	assert.False(t, snap.DayPlan.Events[0].End.IsZero())
	assert.Equal(t, "Meditate", snap.DayPlan.Tasks[0].Text)
}

func TestCallSession_SetBriefing(t *testing.T) {
	_, sess := openSession(t)
	b := Briefing{
		Priorities: []string{"Quarterly report"},
		Conflicts:  []string{"Standup overlaps Dentist"},
		Energy:     "moderate",
		Recent:     "Recent pattern: steady progress. Last session: planning.",
	}
	require.NoError(t, sess.SetBriefing(b))

	b.Priorities[0] = "Changed"
	snap := sess.Snapshot()
	assert.Equal(t, []string{"Quarterly report"}, snap.Briefing.Priorities)
	assert.Equal(t, "moderate", snap.Briefing.Energy)
	assert.False(t, snap.Briefing.IsEmpty())

	snap.Briefing.Conflicts[0] = "Changed"
	assert.Equal(t, "Standup overlaps Dentist", sess.Snapshot().Briefing.Conflicts[0])

	require.True(t, sess.End("test"))
	assert.ErrorIs(t, sess.SetBriefing(Briefing{Energy: "light"}), ErrSessionEnded)
	assert.True(t, Briefing{}.IsEmpty())
}

func TestCallSession_ApplyTurn(t *testing.T) {
	t.Run("records decisions in current phase then advances", func(t *testing.T) {
		_, sess := openSession(t)
		require.NoError(t, sess.SetPhase(PhaseCommitment))
		ended, err := sess.ApplyTurn(Outcome{
			Reply:     "Locked in.",
			Decisions: []PendingDecision{{Text: "I will write the report", Source: SourceCommitment}},
			NextPhase: PhaseWrapUp,
		})
		require.NoError(t, err)
		assert.False(t, ended)

		snap := sess.Snapshot()
		require.Len(t, snap.Decisions, 1)
		assert.Equal(t, PhaseCommitment, snap.Decisions[0].PhaseAtTime)
		assert.Equal(t, PhaseWrapUp, snap.Phase)
		assert.True(t, snap.HasCommitments())
	})

	t.Run("end outcome closes once", func(t *testing.T) {
		_, sess := openSession(t)
		ended, err := sess.ApplyTurn(Outcome{Reply: "Go execute.", ReplyKind: KindClosing, End: true, EndReason: "hard_cap"})
		require.NoError(t, err)
		assert.True(t, ended)

		_, err = sess.ApplyTurn(Outcome{Reply: "again"})
		assert.ErrorIs(t, err, ErrSessionEnded)
		assert.False(t, sess.End("status"))
	})

	t.Run("rejects illegal next phase", func(t *testing.T) {
		_, sess := openSession(t)
		_, err := sess.ApplyTurn(Outcome{Reply: "x", NextPhase: PhaseEnded})
		var cfgErr *ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, 0, sess.Snapshot().Transcript.Len())
	})
}

func TestCallSession_SilenceResetsOnSpeech(t *testing.T) {
	_, sess := openSession(t)
	assert.Equal(t, 1, sess.RecordSilence())
	assert.Equal(t, 2, sess.RecordSilence())
	require.NoError(t, sess.AppendTurn(RoleUser, "sorry", KindConversation))
	assert.Equal(t, 1, sess.RecordSilence())
}

// =============================================================================
// Store Tests
// =============================================================================

func TestStore_OpenEvictTombstone(t *testing.T) {
	store := NewStore(WithClock(fakeClock()))

	first, created, err := store.Open("CA1", "+1")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := store.Open("CA1", "+1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, again)

	assert.True(t, store.Evict("CA1"))
	assert.False(t, store.Evict("CA1"))
	assert.True(t, store.IsClosed("CA1"))

	_, _, err = store.Open("CA1", "+1")
	assert.ErrorIs(t, err, ErrCallClosed)

	err = store.Do(context.Background(), "CA1", func(*CallSession) error { return nil })
	assert.ErrorIs(t, err, ErrUnknownCall)

	_, _, err = store.Open("", "+1")
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestStore_DoSerializesPerCall(t *testing.T) {
	store := NewStore()
	_, _, err := store.Open("CA2", "+1")
	require.NoError(t, err)

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Do(context.Background(), "CA2", func(s *CallSession) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				_ = s.AppendTurn(RoleUser, "turn", KindConversation)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	sess, ok := store.Get("CA2")
	require.True(t, ok)
	assert.Equal(t, 20, sess.Snapshot().Transcript.Len())
}

func TestStore_DoHonoursContext(t *testing.T) {
	store := NewStore()
	_, _, err := store.Open("CA3", "+1")
	require.NoError(t, err)

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = store.Do(context.Background(), "CA3", func(*CallSession) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = store.Do(ctx, "CA3", func(*CallSession) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(hold)
}

func TestStore_IdleAndPurge(t *testing.T) {
	now := time.Date(2026, 3, 9, 7, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := NewStore(WithClock(clock))

	_, _, err := store.Open("old", "+1")
	require.NoError(t, err)
	now = now.Add(10 * time.Minute)
	_, _, err = store.Open("fresh", "+1")
	require.NoError(t, err)

	assert.Equal(t, []string{"old"}, store.Idle(5*time.Minute))

	store.Evict("old")
	now = now.Add(time.Hour)
	assert.Equal(t, 1, store.PurgeTombstones(30*time.Minute))
	assert.False(t, store.IsClosed("old"))
	assert.Equal(t, 1, store.Len())
}

// =============================================================================
// Property Tests
// =============================================================================

// TestProperty_EndIsAbsorbing checks that after End no sequence of
// mutations changes the transcript or decisions.
func TestProperty_EndIsAbsorbing(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		store := NewStore()
		sess, _, err := store.Open("CAP", "+1")
		if err != nil {
			rt.Fatalf("open: %v", err)
		}
		before := rapid.IntRange(0, 10).Draw(rt, "before")
		for i := 0; i < before; i++ {
			_ = sess.AppendTurn(RoleUser, "hello there", KindConversation)
		}
		sess.End("test")
		want := sess.Snapshot()

		after := rapid.IntRange(1, 10).Draw(rt, "after")
		for i := 0; i < after; i++ {
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0:
				_ = sess.AppendTurn(RoleAssistant, "reply", KindConversation)
			case 1:
				_ = sess.RecordDecision("I will", SourceCommitment)
			case 2:
				_ = sess.SetPhase(PhaseWrapUp)
			case 3:
				_, _ = sess.ApplyTurn(Outcome{Reply: "x", NextPhase: PhaseCommitment})
			}
		}
		got := sess.Snapshot()
		if got.Transcript.Len() != want.Transcript.Len() || len(got.Decisions) != len(want.Decisions) || got.Phase != PhaseEnded {
			rt.Fatalf("ended session mutated: before=%d/%d after=%d/%d phase=%s",
				want.Transcript.Len(), len(want.Decisions), got.Transcript.Len(), len(got.Decisions), got.Phase)
		}
	})
}
