// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package responder

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce collapses the burst of events an editor save emits.
const DefaultReloadDebounce = 250 * time.Millisecond

// PersonaWatcher reloads the persona override file into a Generator when
// the file changes.
//
// The parent directory is watched rather than the file, because editors
// and config management replace files by rename. A reload that fails to
// parse or validate is logged and the running persona stays active.
type PersonaWatcher struct {
	path     string
	name     string
	gen      *Generator
	debounce time.Duration
	watcher  *fsnotify.Watcher

	// OnReload is called after every reload attempt. Used by tests.
	OnReload func(err error)

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewPersonaWatcher creates a watcher for path that re-selects the persona
// called name on every change.
//
// # Inputs
//
//   - path: Persona override file. Must not be empty.
//   - name: Persona to select after reload. Empty selects DefaultPersona.
//   - gen: Generator whose persona is replaced.
//   - debounce: Quiet period before reloading. Zero uses
//     DefaultReloadDebounce.
//
// # Outputs
//
//   - *PersonaWatcher: Not yet watching. Call Start.
//   - error: Non-nil when the OS watcher cannot be created.
func NewPersonaWatcher(path, name string, gen *Generator, debounce time.Duration) (*PersonaWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("persona watcher needs a file path")
	}
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve persona file: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &PersonaWatcher{
		path:     abs,
		name:     name,
		gen:      gen,
		debounce: debounce,
		watcher:  watcher,
		done:     make(chan struct{}),
	}, nil
}

// Start watches the file's directory until ctx is canceled or Stop is
// called.
func (w *PersonaWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.wg.Add(1)
	go w.loop(ctx)
	slog.Info("Watching persona file", "path", w.path, "persona", w.name)
	return nil
}

// Stop ends watching and waits for the event loop to exit. Safe to call
// more than once.
func (w *PersonaWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
	w.wg.Wait()
}

func (w *PersonaWatcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Persona watcher error", "error", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *PersonaWatcher) reload() {
	err := w.apply()
	if err != nil {
		slog.Warn("Persona reload rejected, keeping the running persona", "path", w.path, "error", err)
	} else {
		slog.Info("Persona reloaded", "persona", w.gen.Persona().Name)
	}
	if w.OnReload != nil {
		w.OnReload(err)
	}
}

func (w *PersonaWatcher) apply() error {
	set, err := LoadPersonas(w.path)
	if err != nil {
		return err
	}
	persona, err := set.Get(w.name)
	if err != nil {
		return err
	}
	return w.gen.SetPersona(persona)
}
