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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/intent"
)

// =============================================================================
// Sweeper Implementation
// =============================================================================

// SchedulerConfig holds configuration for the idle-call sweeper.
//
// # Fields
//
//   - Interval: How often to sweep. Default: 1 minute.
//   - IdleTimeout: Inactivity after which a live call is ended. Default:
//     10 minutes, well above the 8 second listen window plus any reprompts.
//   - TombstoneTTL: How long ended call IDs are remembered. Default: 24h,
//     longer than the provider retries a webhook.
type SchedulerConfig struct {
	Interval     time.Duration
	IdleTimeout  time.Duration
	TombstoneTTL time.Duration
}

// DefaultSchedulerConfig returns the production sweeper configuration.
//
// # Examples
//
//	config := DefaultSchedulerConfig()
//	config.IdleTimeout = 5 * time.Minute
//	sweeper := NewSweeper(store, handler, nil, config)
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:     time.Minute,
		IdleTimeout:  10 * time.Minute,
		TombstoneTTL: 24 * time.Hour,
	}
}

// sweeper implements Scheduler.
//
// # Description
//
// Manages the lifecycle of a background goroutine that periodically sweeps
// the call store. Uses the ticker + done channel pattern for graceful
// shutdown.
//
// # Thread Safety
//
// All public methods are thread-safe. A mutex protects state transitions.
type sweeper struct {
	store  CallStore
	ender  CallEnder
	clock  ClockChecker
	config SchedulerConfig

	done    chan struct{}
	stopped chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSweeper creates the idle-call sweeper.
//
// # Inputs
//
//   - store: Lists idle calls and purges tombstones.
//   - ender: Ends idle calls and triggers their finalization.
//   - clock: Guards against wall-clock jumps. Nil uses a checker whose
//     forward tolerance is three sweep intervals.
//   - config: Zero fields take DefaultSchedulerConfig values.
//
// # Outputs
//
//   - Scheduler: Ready to Start().
//
// # Examples
//
//	sweeper := NewSweeper(store, handler, nil, DefaultSchedulerConfig())
//	if err := sweeper.Start(ctx); err != nil {
//	    return err
//	}
//	defer sweeper.Stop()
//
// # Limitations
//
//   - Only one sweeper should run per process.
func NewSweeper(store CallStore, ender CallEnder, clock ClockChecker, config SchedulerConfig) Scheduler {
	def := DefaultSchedulerConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}
	if config.TombstoneTTL <= 0 {
		config.TombstoneTTL = def.TombstoneTTL
	}
	if clock == nil {
		clock = NewClockChecker(ClockConfig{MaxForwardJump: 3 * config.Interval})
	}
	return &sweeper{
		store:  store,
		ender:  ender,
		clock:  clock,
		config: config,
	}
}

// Start begins the background sweep loop.
//
// # Description
//
// Runs one sweep immediately, then one per Interval until Stop() is called
// or ctx is cancelled.
//
// # Outputs
//
//   - error: Non-nil if the sweeper is already running.
func (s *sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("sweeper is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	s.clock.ResetJumpDetection()

	slog.Info("Idle call sweeper starting",
		"interval", s.config.Interval.String(),
		"idle_timeout", s.config.IdleTimeout.String(),
		"tombstone_ttl", s.config.TombstoneTTL.String(),
	)

	go s.runLoop(ctx, s.done, s.stopped)
	return nil
}

// Stop signals the loop to exit and waits for the current sweep to finish.
// Safe to call multiple times.
func (s *sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	slog.Info("Idle call sweeper stopping")
	close(s.done)
	s.running = false
	stopped := s.stopped
	s.mu.Unlock()

	<-stopped
	return nil
}

// RunNow performs one sweep immediately without affecting the schedule.
func (s *sweeper) RunNow(ctx context.Context) (SweepResult, error) {
	return s.sweep(ctx)
}

// =============================================================================
// Internal Methods
// =============================================================================

func (s *sweeper) runLoop(ctx context.Context, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.executeSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Idle call sweeper stopped (context cancelled)")
			return
		case <-done:
			slog.Info("Idle call sweeper stopped (stop requested)")
			return
		case <-ticker.C:
			s.executeSweep(ctx)
		}
	}
}

// executeSweep wraps sweep with logging so a failed cycle never stops the
// loop.
func (s *sweeper) executeSweep(ctx context.Context) {
	result, err := s.sweep(ctx)
	if err != nil {
		slog.Error("Idle sweep failed", "error", err)
		return
	}
	if result.IdleFound > 0 || result.TombstonesPurged > 0 {
		slog.Info("Idle sweep completed",
			"idle_found", result.IdleFound,
			"calls_ended", result.CallsEnded,
			"tombstones_purged", result.TombstonesPurged,
			"duration_ms", result.Duration().Milliseconds(),
		)
	} else {
		slog.Debug("Idle sweep completed (nothing to do)")
	}
}

// sweep ends idle calls and purges old tombstones.
//
// # Outputs
//
//   - SweepResult: What the cycle did. Skipped is set when the clock check
//     failed; tombstones are still purged in that case.
//   - error: ctx.Err() if ctx ended before the cycle completed.
func (s *sweeper) sweep(ctx context.Context) (SweepResult, error) {
	result := SweepResult{StartTime: time.Now()}

	if err := s.clock.CheckClockSanity(); err != nil {
		slog.Warn("Skipping idle expiry this cycle", "error", err)
		result.Skipped = true
	} else {
		idle := s.store.Idle(s.config.IdleTimeout)
		result.IdleFound = len(idle)
		for _, callID := range idle {
			if err := ctx.Err(); err != nil {
				result.EndTime = time.Now()
				return result, fmt.Errorf("idle sweep interrupted: %w", err)
			}
			if s.ender.EndCall(ctx, callID, intent.EndIdleTimeout) {
				slog.Info("Ended idle call", "call_sid", callID, "idle_timeout", s.config.IdleTimeout.String())
				result.CallsEnded++
			}
		}
	}

	result.TombstonesPurged = s.store.PurgeTombstones(s.config.TombstoneTTL)
	result.EndTime = time.Now()
	return result, nil
}
