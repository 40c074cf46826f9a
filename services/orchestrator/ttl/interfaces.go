// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ttl expires abandoned calls.
//
// A call normally ends through the caller's speech or a terminal status
// callback. When neither arrives (the provider dropped the status webhook,
// the process missed it during a deploy) the session would stay live
// forever. The sweeper finalizes such calls once they have been idle for
// longer than the idle timeout and forgets tombstones once no late webhook
// can still arrive for them.
package ttl

import (
	"context"
	"time"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/intent"
)

// =============================================================================
// Collaborators
// =============================================================================

// CallStore lists idle calls and purges old tombstones.
//
// Implemented by *session.Store.
type CallStore interface {
	// Idle returns the IDs of live calls with no activity for longer than
	// olderThan.
	Idle(olderThan time.Duration) []string

	// PurgeTombstones forgets evicted call IDs older than olderThan and
	// returns how many were removed.
	PurgeTombstones(olderThan time.Duration) int
}

// CallEnder ends a live call and starts its finalization.
//
// Implemented by *handlers.TurnHandler. EndCall must be safe to race with
// speech and status webhooks for the same call; it returns true only when
// this invocation performed the end.
type CallEnder interface {
	EndCall(ctx context.Context, callID string, reason intent.EndReason) bool
}

// =============================================================================
// Scheduler Contract
// =============================================================================

// Scheduler runs sweep cycles in the background.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Scheduler interface {
	// Start begins periodic sweeping. Returns an error if already running.
	Start(ctx context.Context) error

	// Stop ends periodic sweeping. Safe to call more than once.
	Stop() error

	// RunNow performs one sweep immediately.
	RunNow(ctx context.Context) (SweepResult, error)
}

// =============================================================================
// Results
// =============================================================================

// SweepResult summarises one sweep cycle.
type SweepResult struct {
	StartTime time.Time
	EndTime   time.Time

	// IdleFound is the number of calls past the idle timeout.
	IdleFound int

	// CallsEnded is how many of those this sweep ended. A call that ended
	// through another signal between listing and ending is not counted.
	CallsEnded int

	TombstonesPurged int

	// Skipped is set when the clock check failed and idle calls were left
	// alone for this cycle.
	Skipped bool
}

// Duration returns how long the sweep took.
func (r SweepResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
