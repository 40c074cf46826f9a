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
	"sync"
	"testing"
	"time"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// =============================================================================
// Clock Sanity Checking Tests
// =============================================================================

func TestClockChecker_FirstCheckPasses(t *testing.T) {
	checker := NewClockChecker(ClockConfig{})
	if err := checker.CheckClockSanity(); err != nil {
		t.Errorf("first check should pass, got: %v", err)
	}
}

func TestClockChecker_NormalProgression(t *testing.T) {
	clock := newFakeClock()
	checker := NewClockChecker(ClockConfig{MaxForwardJump: 3 * time.Minute, Now: clock.Now})

	for i := 0; i < 5; i++ {
		if err := checker.CheckClockSanity(); err != nil {
			t.Fatalf("check %d: unexpected error: %v", i, err)
		}
		clock.Advance(time.Minute)
	}
}

func TestClockChecker_ForwardJump(t *testing.T) {
	clock := newFakeClock()
	checker := NewClockChecker(ClockConfig{MaxForwardJump: 3 * time.Minute, Now: clock.Now})

	_ = checker.CheckClockSanity()
	clock.Advance(time.Hour)
	if err := checker.CheckClockSanity(); err == nil {
		t.Error("forward jump of 1h should fail")
	}

	// The baseline moved, so the next normal tick passes again.
	clock.Advance(time.Minute)
	if err := checker.CheckClockSanity(); err != nil {
		t.Errorf("check after jump should pass, got: %v", err)
	}
}

func TestClockChecker_BackwardJump(t *testing.T) {
	clock := newFakeClock()
	checker := NewClockChecker(ClockConfig{MaxBackwardJump: time.Minute, Now: clock.Now})

	_ = checker.CheckClockSanity()
	clock.Advance(-30 * time.Second)
	if err := checker.CheckClockSanity(); err != nil {
		t.Errorf("small backward step should pass, got: %v", err)
	}

	clock.Advance(-10 * time.Minute)
	if err := checker.CheckClockSanity(); err == nil {
		t.Error("backward jump of 10m should fail")
	}
}

func TestClockChecker_ResetJumpDetection(t *testing.T) {
	clock := newFakeClock()
	checker := NewClockChecker(ClockConfig{MaxForwardJump: time.Minute, Now: clock.Now})

	_ = checker.CheckClockSanity()
	clock.Advance(time.Hour)
	checker.ResetJumpDetection()
	if err := checker.CheckClockSanity(); err != nil {
		t.Errorf("check after reset should pass, got: %v", err)
	}
}

func TestDefaultClockConfig(t *testing.T) {
	config := DefaultClockConfig()
	if config.MaxBackwardJump != time.Minute {
		t.Errorf("MaxBackwardJump = %v, want 1m", config.MaxBackwardJump)
	}
	if config.MaxForwardJump != 5*time.Minute {
		t.Errorf("MaxForwardJump = %v, want 5m", config.MaxForwardJump)
	}
	if config.Now == nil {
		t.Error("Now should default to time.Now")
	}
}

func TestNoopClockChecker(t *testing.T) {
	checker := NewNoopClockChecker()
	checker.ResetJumpDetection()
	if err := checker.CheckClockSanity(); err != nil {
		t.Errorf("noop checker should never fail, got: %v", err)
	}
}
