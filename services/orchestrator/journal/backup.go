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
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBackupRunning is returned when a backup is requested while another
// one is still streaming.
var ErrBackupRunning = errors.New("journal backup already running")

// ObjectWriter stores one named object, e.g. in a Cloud Storage bucket.
type ObjectWriter interface {
	Upload(ctx context.Context, name string, r io.Reader) error
}

// BackupResult describes one finished backup.
type BackupResult struct {
	Object  string    `json:"object"`
	Version uint64    `json:"version"`
	Bytes   int64     `json:"bytes"`
	At      time.Time `json:"at"`
}

// Backup writes a full Badger backup of the journal to w and returns the
// version it covers. Restore with badger's DB.Load.
func (j *BadgerJournal) Backup(w io.Writer) (uint64, error) {
	return j.db.Backup(w, 0)
}

// Backuper streams journal backups to an ObjectWriter. One backup runs at
// a time.
type Backuper struct {
	journal *BadgerJournal
	dst     ObjectWriter
	prefix  string
	clock   func() time.Time
	running atomic.Bool
}

// NewBackuper creates a Backuper. Object names are
// "{prefix}journal-{UTC timestamp}.badger".
func NewBackuper(j *BadgerJournal, dst ObjectWriter, prefix string, clock func() time.Time) *Backuper {
	if clock == nil {
		clock = time.Now
	}
	return &Backuper{journal: j, dst: dst, prefix: prefix, clock: clock}
}

// Backup streams the journal to the destination.
//
// # Description
//
// The Badger stream is piped straight into the upload, so the backup is
// never held in memory or on local disk. A failure on either side aborts
// the other.
//
// # Outputs
//
//   - BackupResult: Object name, journal version and size.
//   - error: ErrBackupRunning, or the first stream or upload error.
func (b *Backuper) Backup(ctx context.Context) (BackupResult, error) {
	if !b.running.CompareAndSwap(false, true) {
		return BackupResult{}, ErrBackupRunning
	}
	defer b.running.Store(false)

	at := b.clock().UTC()
	name := fmt.Sprintf("%sjournal-%s.badger", b.prefix, at.Format("20060102T150405Z"))

	pr, pw := io.Pipe()
	counter := &countingReader{r: pr}

	var (
		wg        sync.WaitGroup
		version   uint64
		backupErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		version, backupErr = b.journal.Backup(pw)
		pw.CloseWithError(backupErr)
	}()

	uploadErr := b.dst.Upload(ctx, name, counter)
	// Unblocks the backup goroutine when the upload stopped reading early.
	pr.CloseWithError(io.ErrClosedPipe)
	wg.Wait()

	// A stream failure reaches the upload through the pipe, so the upload
	// error covers both sides.
	if uploadErr != nil {
		return BackupResult{}, fmt.Errorf("upload journal backup: %w", uploadErr)
	}
	if backupErr != nil {
		return BackupResult{}, fmt.Errorf("stream journal backup: %w", backupErr)
	}

	res := BackupResult{Object: name, Version: version, Bytes: counter.n.Load(), At: at}
	slog.Info("Journal backup uploaded", "object", res.Object, "version", res.Version, "bytes", res.Bytes)
	return res, nil
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
