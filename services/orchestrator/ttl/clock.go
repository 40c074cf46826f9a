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
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// Clock Sanity Checking
// =============================================================================

// ClockChecker guards idle expiry against wall-clock jumps.
//
// # Description
//
// Idle time is measured against the wall clock. If the clock jumps forward
// (NTP correction, VM resume) every live call suddenly looks idle and would
// be hung up mid-sentence. The sweeper asks the checker before ending any
// call and skips the cycle when the clock moved further than the sweep
// interval allows.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type ClockChecker interface {
	// CheckClockSanity returns an error when the time since the previous
	// check is negative beyond MaxBackwardJump or larger than
	// MaxForwardJump. The first check always passes.
	CheckClockSanity() error

	// ResetJumpDetection forgets the previous check.
	ResetJumpDetection()
}

// ClockConfig contains configuration for the clock checker.
//
// # Fields
//
//   - MaxBackwardJump: Largest tolerated backward step. Default: 1 minute.
//   - MaxForwardJump: Largest tolerated forward step between checks. The
//     sweeper sets this to a few sweep intervals.
//   - Now: Time source. Default: time.Now.
type ClockConfig struct {
	MaxBackwardJump time.Duration
	MaxForwardJump  time.Duration
	Now             func() time.Time
}

// DefaultClockConfig returns a config for a one-minute sweep interval.
func DefaultClockConfig() ClockConfig {
	return ClockConfig{
		MaxBackwardJump: time.Minute,
		MaxForwardJump:  5 * time.Minute,
		Now:             time.Now,
	}
}

type clockChecker struct {
	config ClockConfig

	mu        sync.Mutex
	lastCheck time.Time
	checked   bool
}

// NewClockChecker creates a ClockChecker. Zero fields in config take their
// DefaultClockConfig values.
func NewClockChecker(config ClockConfig) ClockChecker {
	def := DefaultClockConfig()
	if config.MaxBackwardJump <= 0 {
		config.MaxBackwardJump = def.MaxBackwardJump
	}
	if config.MaxForwardJump <= 0 {
		config.MaxForwardJump = def.MaxForwardJump
	}
	if config.Now == nil {
		config.Now = def.Now
	}
	return &clockChecker{config: config}
}

// CheckClockSanity implements ClockChecker.
//
// The baseline moves to the current time even when the check fails, so a
// single jump skips exactly one cycle.
func (c *clockChecker) CheckClockSanity() error {
	now := c.config.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	last, checked := c.lastCheck, c.checked
	c.lastCheck, c.checked = now, true
	if !checked {
		return nil
	}

	diff := now.Sub(last)
	if diff < -c.config.MaxBackwardJump {
		return fmt.Errorf("clock sanity: backward jump of %v detected (max allowed: %v)",
			-diff, c.config.MaxBackwardJump)
	}
	if diff > c.config.MaxForwardJump {
		return fmt.Errorf("clock sanity: forward jump of %v detected (max allowed: %v)",
			diff, c.config.MaxForwardJump)
	}
	return nil
}

// ResetJumpDetection implements ClockChecker.
func (c *clockChecker) ResetJumpDetection() {
	c.mu.Lock()
	c.checked = false
	c.mu.Unlock()
}

// noopClockChecker accepts every clock reading.
type noopClockChecker struct{}

// NewNoopClockChecker returns a ClockChecker that never fails. Used when
// clock checking is disabled in configuration.
func NewNoopClockChecker() ClockChecker {
	return &noopClockChecker{}
}

func (n *noopClockChecker) CheckClockSanity() error { return nil }

func (n *noopClockChecker) ResetJumpDetection() {}
