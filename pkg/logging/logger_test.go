// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"Warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNew_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Service: "morningcoach", JSON: true, Output: &buf})

	logger.Slog().Info("Call started", "call_sid", "CA1")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Call started", lines[0]["msg"])
	assert.Equal(t, "morningcoach", lines[0]["service"])
	assert.Equal(t, "CA1", lines[0]["call_sid"])
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, JSON: true, Output: &buf})

	logger.Slog().Debug("utterance", "text", "hello")
	logger.Slog().Info("turn")
	logger.Slog().Warn("llm slow")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "llm slow", lines[0]["msg"])
}

func TestNew_MasksPhoneNumbers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{JSON: true, Output: &buf})

	logger.Slog().Info("Outbound call placed", "to", "+15551234567", "from", "+15559990000", "call_sid", "CA1")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "***4567", lines[0]["to"])
	assert.Equal(t, "***0000", lines[0]["from"])
	assert.Equal(t, "CA1", lines[0]["call_sid"])
	assert.NotContains(t, buf.String(), "5551234567")
}

func TestNew_CustomPhoneKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{JSON: true, Output: &buf, PhoneKeys: []string{"number"}})

	logger.Slog().Info("x", "number", "+15551234567", "to", "+15550001111")

	lines := decodeLines(t, &buf)
	assert.Equal(t, "***4567", lines[0]["number"])
	assert.Equal(t, "+15550001111", lines[0]["to"])
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "***4567", MaskPhone("+1 (555) 123-4567"))
	assert.Equal(t, "***", MaskPhone("12"))
	assert.Equal(t, "***", MaskPhone(""))
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	logger := New(Config{LogDir: dir, Service: "coach", Output: &console})

	logger.Slog().Info("Session finalized", "call_sid", "CA9")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close(), "second close is a no-op")

	name := "coach_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"call_sid":"CA9"`)
	assert.Contains(t, console.String(), "Session finalized", "console still receives records")
}

func TestNew_UnwritableLogDirFallsBack(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	var console bytes.Buffer
	logger := New(Config{LogDir: filepath.Join(blocker, "logs"), Output: &console})
	defer logger.Close()

	assert.Contains(t, console.String(), "File logging disabled")
	logger.Slog().Info("still works")
	assert.Contains(t, console.String(), "still works")
}

func TestLogger_WithSharesHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{JSON: true, Output: &buf})

	child := logger.With("call_sid", "CA2")
	child.Slog().Info("turn")
	require.NoError(t, child.Close())

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "CA2", lines[0]["call_sid"])
}

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("k", "v")}))

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
	logger.Info("info only")

	assert.Contains(t, a.String(), "info only")
	assert.Contains(t, a.String(), `"k":"v"`)
	assert.Empty(t, b.String())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "logs"), expandPath("~/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
}
