// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures the local call journal.
type BadgerConfig struct {
	// Path is the journal directory. Ignored when InMemory is set.
	Path     string
	InMemory bool

	// SyncWrites fsyncs every record. Finalized sessions are written once
	// per call, so the cost is small.
	SyncWrites bool

	// Logger receives Badger's own logs. Nil silences them.
	Logger *slog.Logger

	// GCInterval runs value log GC this often. 0 disables it.
	GCInterval     time.Duration
	GCDiscardRatio float64

	// Retention is the TTL of every record. 0 keeps records forever.
	Retention time.Duration
}

// DefaultBadgerConfig returns the serve defaults for path: synced writes,
// GC every 5 minutes at a 0.5 discard ratio, 90 days of history.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
		Retention:      90 * 24 * time.Hour,
	}
}

// InMemoryBadgerConfig returns configuration for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

func (c BadgerConfig) options() (badger.Options, error) {
	if c.InMemory {
		return c.tune(badger.DefaultOptions("").WithInMemory(true)), nil
	}
	if c.Path == "" {
		return badger.Options{}, errors.New("journal path is required for persistent database")
	}
	if err := os.MkdirAll(c.Path, 0o750); err != nil {
		return badger.Options{}, fmt.Errorf("create journal directory %s: %w", c.Path, err)
	}
	return c.tune(badger.DefaultOptions(c.Path)), nil
}

func (c BadgerConfig) tune(opts badger.Options) badger.Options {
	opts = opts.WithSyncWrites(c.SyncWrites).WithNumVersionsToKeep(1)
	if c.Logger == nil {
		return opts.WithLogger(nil)
	}
	return opts.WithLogger(badgerLog{c.Logger.With("component", "badger")})
}

func openBadger(cfg BadgerConfig) (*badger.DB, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	return db, nil
}

// badgerLog adapts slog to badger.Logger. Badger terminates its messages
// with a newline.
type badgerLog struct {
	l *slog.Logger
}

func (b badgerLog) Errorf(format string, args ...interface{}) {
	b.l.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b badgerLog) Warningf(format string, args ...interface{}) {
	b.l.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b badgerLog) Infof(format string, args ...interface{}) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b badgerLog) Debugf(format string, args ...interface{}) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// collectGarbage runs value log GC every interval until ctx ends, then
// closes done.
func collectGarbage(ctx context.Context, db *badger.DB, interval time.Duration, ratio float64, done chan<- struct{}) {
	defer close(done)
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing needed collecting.
			if err := db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				slog.Warn("Journal value log GC failed", "error", err)
			}
		}
	}
}
