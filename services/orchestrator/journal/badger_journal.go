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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/summary"
)

// Key layout. Timestamps are zero-padded Unix nanoseconds so keys sort
// chronologically.
const (
	turnPrefix    = "turn/"
	sessionPrefix = "session/"
	missedPrefix  = "missed/"
)

// BadgerJournal stores every record kind in a local BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type BadgerJournal struct {
	db        *badger.DB
	stopGC    context.CancelFunc
	gcDone    chan struct{}
	retention time.Duration
	closeOnce sync.Once
	closeErr  error
}

// OpenBadgerJournal opens the journal database.
//
// Description:
//
//	Opens BadgerDB with cfg and starts value log GC for persistent
//	databases when GCInterval is set.
//
// Inputs:
//
//	cfg - Database configuration.
//
// Outputs:
//
//	*BadgerJournal - Ready to use. Call Close when done.
//	error - Non-nil if the database cannot be opened.
func OpenBadgerJournal(cfg BadgerConfig) (*BadgerJournal, error) {
	db, err := openBadger(cfg)
	if err != nil {
		return nil, err
	}
	j := &BadgerJournal{db: db, retention: cfg.Retention}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		var ctx context.Context
		ctx, j.stopGC = context.WithCancel(context.Background())
		j.gcDone = make(chan struct{})
		go collectGarbage(ctx, db, cfg.GCInterval, cfg.GCDiscardRatio, j.gcDone)
	}
	return j, nil
}

// AppendTurn implements Journal.
func (j *BadgerJournal) AppendTurn(ctx context.Context, rec TurnLogRecord) error {
	key := fmt.Sprintf("%s%s/%06d/%s", turnPrefix, rec.CallID, rec.Index, rec.ID)
	return j.put(ctx, key, rec)
}

// AppendSession implements summary.Sink.
func (j *BadgerJournal) AppendSession(ctx context.Context, rec summary.SessionRecord) error {
	key := fmt.Sprintf("%s%020d/%s", sessionPrefix, rec.EndTime.UnixNano(), rec.ID)
	return j.put(ctx, key, rec)
}

// AppendMissedCall implements summary.Sink.
func (j *BadgerJournal) AppendMissedCall(ctx context.Context, rec summary.MissedCallRecord) error {
	key := fmt.Sprintf("%s%020d/%s", missedPrefix, rec.EndTime.UnixNano(), rec.ID)
	return j.put(ctx, key, rec)
}

// Turns returns the turn log of one call in order.
func (j *BadgerJournal) Turns(ctx context.Context, callID string) ([]TurnLogRecord, error) {
	var out []TurnLogRecord
	err := j.scan(ctx, turnPrefix+callID+"/", false, 0, func(val []byte) error {
		var rec TurnLogRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// RecentSessions returns up to limit session records, newest first.
// A limit of 0 returns all of them.
func (j *BadgerJournal) RecentSessions(ctx context.Context, limit int) ([]summary.SessionRecord, error) {
	var out []summary.SessionRecord
	err := j.scan(ctx, sessionPrefix, true, limit, func(val []byte) error {
		var rec summary.SessionRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// RecentMissedCalls returns up to limit missed-call records, newest first.
func (j *BadgerJournal) RecentMissedCalls(ctx context.Context, limit int) ([]summary.MissedCallRecord, error) {
	var out []summary.MissedCallRecord
	err := j.scan(ctx, missedPrefix, true, limit, func(val []byte) error {
		var rec summary.MissedCallRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// Close stops GC and closes the database. Safe to call more than once.
func (j *BadgerJournal) Close() error {
	j.closeOnce.Do(func() {
		if j.stopGC != nil {
			j.stopGC()
			<-j.gcDone
		}
		j.closeErr = j.db.Close()
	})
	return j.closeErr
}

func (j *BadgerJournal) put(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if j.retention > 0 {
			e = e.WithTTL(j.retention)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// scan calls fn with each value under prefix. Reverse walks newest first.
func (j *BadgerJournal) scan(ctx context.Context, prefix string, reverse bool, limit int, fn func([]byte) error) error {
	return j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := []byte(prefix)
		if reverse {
			seek = append([]byte(prefix), 0xFF)
		}
		n := 0
		for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(fn); err != nil {
				return fmt.Errorf("read %s: %w", it.Item().Key(), err)
			}
			n++
			if limit > 0 && n >= limit {
				break
			}
		}
		return nil
	})
}
