// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ttl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/intent"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

// =============================================================================
// Test Doubles
// =============================================================================

// recordingEnder ends calls in a real store the way the turn handler does:
// End under the per-call lock, then Evict.
type recordingEnder struct {
	store *session.Store

	mu      sync.Mutex
	ended   []string
	reasons []intent.EndReason
}

func (r *recordingEnder) EndCall(ctx context.Context, callID string, reason intent.EndReason) bool {
	var ended bool
	err := r.store.Do(ctx, callID, func(s *session.CallSession) error {
		ended = s.End(string(reason))
		if ended {
			r.store.Evict(callID)
		}
		return nil
	})
	if err != nil || !ended {
		return false
	}
	r.mu.Lock()
	r.ended = append(r.ended, callID)
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
	return true
}

func (r *recordingEnder) endedCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ended))
	copy(out, r.ended)
	return out
}

// staleEnder reports every call as already ended elsewhere.
type staleEnder struct{}

func (staleEnder) EndCall(context.Context, string, intent.EndReason) bool { return false }

type failingClock struct{}

func (failingClock) CheckClockSanity() error { return context.DeadlineExceeded }
func (failingClock) ResetJumpDetection()     {}

func newSweepFixture(t *testing.T) (*session.Store, *fakeClock, *recordingEnder) {
	t.Helper()
	clock := newFakeClock()
	store := session.NewStore(session.WithClock(clock.Now))
	return store, clock, &recordingEnder{store: store}
}

func openCall(t *testing.T, store *session.Store, callID string) {
	t.Helper()
	if _, _, err := store.Open(callID, "+15550001111"); err != nil {
		t.Fatalf("Open(%s): %v", callID, err)
	}
}

// =============================================================================
// Sweep Tests
// =============================================================================

func TestSweep_EndsOnlyIdleCalls(t *testing.T) {
	store, clock, ender := newSweepFixture(t)
	openCall(t, store, "CA-old")
	clock.Advance(8 * time.Minute)
	openCall(t, store, "CA-new")
	clock.Advance(3 * time.Minute)

	s := NewSweeper(store, ender, NewNoopClockChecker(), SchedulerConfig{IdleTimeout: 10 * time.Minute})
	result, err := s.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}

	if result.IdleFound != 1 || result.CallsEnded != 1 {
		t.Errorf("IdleFound=%d CallsEnded=%d, want 1 and 1", result.IdleFound, result.CallsEnded)
	}
	if got := ender.endedCalls(); len(got) != 1 || got[0] != "CA-old" {
		t.Errorf("ended = %v, want [CA-old]", got)
	}
	if ender.reasons[0] != intent.EndIdleTimeout {
		t.Errorf("reason = %q, want %q", ender.reasons[0], intent.EndIdleTimeout)
	}
	if _, live := store.Get("CA-new"); !live {
		t.Error("active call should stay live")
	}
	if !store.IsClosed("CA-old") {
		t.Error("idle call should be tombstoned")
	}
}

func TestSweep_PurgesOldTombstones(t *testing.T) {
	store, clock, ender := newSweepFixture(t)
	openCall(t, store, "CA1")
	store.Evict("CA1")
	clock.Advance(25 * time.Hour)

	s := NewSweeper(store, ender, NewNoopClockChecker(), DefaultSchedulerConfig())
	result, err := s.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	if result.TombstonesPurged != 1 {
		t.Errorf("TombstonesPurged = %d, want 1", result.TombstonesPurged)
	}
	if store.IsClosed("CA1") {
		t.Error("tombstone should be gone after TombstoneTTL")
	}
}

func TestSweep_CallEndedElsewhereNotCounted(t *testing.T) {
	store, clock, _ := newSweepFixture(t)
	openCall(t, store, "CA1")
	clock.Advance(time.Hour)

	s := NewSweeper(store, staleEnder{}, NewNoopClockChecker(), DefaultSchedulerConfig())
	result, _ := s.RunNow(context.Background())
	if result.IdleFound != 1 || result.CallsEnded != 0 {
		t.Errorf("IdleFound=%d CallsEnded=%d, want 1 and 0", result.IdleFound, result.CallsEnded)
	}
}

func TestSweep_ClockJumpSkipsIdleExpiry(t *testing.T) {
	store, clock, ender := newSweepFixture(t)
	openCall(t, store, "CA1")
	store.Evict("CA1")
	openCall(t, store, "CA2")
	clock.Advance(25 * time.Hour)

	s := NewSweeper(store, ender, failingClock{}, DefaultSchedulerConfig())
	result, err := s.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	if !result.Skipped {
		t.Error("Skipped should be set when the clock check fails")
	}
	if len(ender.endedCalls()) != 0 {
		t.Error("no call should be ended on a skipped cycle")
	}
	if result.TombstonesPurged != 1 {
		t.Errorf("tombstones are still purged on a skipped cycle, got %d", result.TombstonesPurged)
	}
}

func TestSweep_CancelledContext(t *testing.T) {
	store, clock, ender := newSweepFixture(t)
	openCall(t, store, "CA1")
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSweeper(store, ender, NewNoopClockChecker(), DefaultSchedulerConfig())
	if _, err := s.RunNow(ctx); err == nil {
		t.Error("RunNow with cancelled context should fail")
	}
	if len(ender.endedCalls()) != 0 {
		t.Error("no call should be ended after cancellation")
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()
	if config.Interval != time.Minute {
		t.Errorf("Interval = %v, want 1m", config.Interval)
	}
	if config.IdleTimeout != 10*time.Minute {
		t.Errorf("IdleTimeout = %v, want 10m", config.IdleTimeout)
	}
	if config.TombstoneTTL != 24*time.Hour {
		t.Errorf("TombstoneTTL = %v, want 24h", config.TombstoneTTL)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	store, clock, ender := newSweepFixture(t)
	openCall(t, store, "CA1")
	clock.Advance(time.Hour)

	s := NewSweeper(store, ender, NewNoopClockChecker(), SchedulerConfig{Interval: time.Hour})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() should fail while running")
	}

	// The first sweep runs immediately on start.
	deadline := time.Now().Add(2 * time.Second)
	for len(ender.endedCalls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(ender.endedCalls()) != 1 {
		t.Fatalf("initial sweep did not end the idle call")
	}

	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	// Restart after stop is allowed.
	if err := s.Start(context.Background()); err != nil {
		t.Errorf("restart error = %v", err)
	}
	_ = s.Stop()
}

func TestSweeper_StopsOnContextCancel(t *testing.T) {
	store, _, ender := newSweepFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	s := NewSweeper(store, ender, NewNoopClockChecker(), SchedulerConfig{Interval: 10 * time.Millisecond}).(*sweeper)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	select {
	case <-s.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after context cancellation")
	}
}
