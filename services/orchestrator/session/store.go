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
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Store
// =============================================================================

// Store holds every live CallSession keyed by call ID.
//
// # Description
//
// Store is the only place sessions are looked up. Each call ID has at most
// one live session. Evicting a session leaves a tombstone so that webhooks
// arriving after finalization cannot resurrect the call.
//
// # Thread Safety
//
// All methods are safe for concurrent use. The map is guarded by a mutex;
// per-call work is serialized by Do.
//
// # Limitations
//
//   - In-memory only. A process restart forgets live calls.
type Store struct {
	mu         sync.Mutex
	sessions   map[string]*CallSession
	tombstones map[string]time.Time
	clock      func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.clock = clock
	}
}

// NewStore creates an empty Store.
//
// # Examples
//
//	store := session.NewStore()
//	sess, created, err := store.Open("CA123", "+15551234567")
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		sessions:   make(map[string]*CallSession),
		tombstones: make(map[string]time.Time),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns the live session for callID, creating it if needed.
//
// # Outputs
//
//   - *CallSession: The live session.
//   - bool: True when the session was created by this call.
//   - error: ErrCallClosed when callID was already finalized.
func (s *Store) Open(callID, from string) (*CallSession, bool, error) {
	if callID == "" {
		return nil, false, &ConfigurationError{Field: "call_id", Value: callID}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, closed := s.tombstones[callID]; closed {
		return nil, false, fmt.Errorf("open %s: %w", callID, ErrCallClosed)
	}
	if sess, ok := s.sessions[callID]; ok {
		return sess, false, nil
	}
	sess := newCallSession(callID, from, s.clock)
	s.sessions[callID] = sess
	slog.Info("Call session opened", "call_sid", callID)
	return sess, true, nil
}

// Get returns the live session for callID.
func (s *Store) Get(callID string) (*CallSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	return sess, ok
}

// IsClosed reports whether callID has been evicted.
func (s *Store) IsClosed(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, closed := s.tombstones[callID]
	return closed
}

// Do runs fn with exclusive access to the session for callID.
//
// # Description
//
// Turns for the same call never interleave: a second webhook for the call
// waits until the first one's fn returns. Waiting honours ctx.
//
// # Inputs
//
//   - ctx: Bounds the wait for the per-call lock.
//   - callID: Call to lock.
//   - fn: Work to run while the lock is held.
//
// # Outputs
//
//   - error: ErrUnknownCall if there is no live session, ctx.Err() if the
//     wait was cancelled, or the error returned by fn.
func (s *Store) Do(ctx context.Context, callID string, fn func(*CallSession) error) error {
	sess, ok := s.Get(callID)
	if !ok {
		return fmt.Errorf("do %s: %w", callID, ErrUnknownCall)
	}
	select {
	case sess.turnLock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-sess.turnLock }()
	return fn(sess)
}

// Evict removes the live session for callID and tombstones the ID.
//
// # Outputs
//
//   - bool: True if a live session was removed.
func (s *Store) Evict(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[callID]
	delete(s.sessions, callID)
	s.tombstones[callID] = s.clock()
	if ok {
		slog.Info("Call session evicted", "call_sid", callID)
	}
	return ok
}

// LiveSession describes one live call for admin listings.
type LiveSession struct {
	CallID       string    `json:"call_sid"`
	Phase        Phase     `json:"phase"`
	Turns        int       `json:"turns"`
	LastActivity time.Time `json:"last_activity"`
}

// Live returns every live session sorted by call ID.
func (s *Store) Live() []LiveSession {
	s.mu.Lock()
	sessions := make([]*CallSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	out := make([]LiveSession, 0, len(sessions))
	for _, sess := range sessions {
		sess.mu.RLock()
		out = append(out, LiveSession{
			CallID:       sess.callID,
			Phase:        sess.phase,
			Turns:        sess.transcript.Len(),
			LastActivity: sess.lastActivity,
		})
		sess.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallID < out[j].CallID })
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Idle returns the IDs of live sessions with no activity for longer than
// olderThan.
func (s *Store) Idle(olderThan time.Duration) []string {
	cutoff := s.clock().Add(-olderThan)
	var ids []string
	for _, live := range s.Live() {
		if live.LastActivity.Before(cutoff) {
			ids = append(ids, live.CallID)
		}
	}
	return ids
}

// PurgeTombstones forgets evicted IDs older than olderThan and returns how
// many were removed.
func (s *Store) PurgeTombstones(olderThan time.Duration) int {
	cutoff := s.clock().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, at := range s.tombstones {
		if at.Before(cutoff) {
			delete(s.tombstones, id)
			purged++
		}
	}
	return purged
}
