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
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/summary"
)

// =============================================================================
// Test Helpers
// =============================================================================

var t0 = time.Date(2026, 3, 9, 7, 0, 0, 0, time.UTC)

func openTestJournal(t *testing.T) *BadgerJournal {
	t.Helper()
	j, err := OpenBadgerJournal(InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func sessionRecord(id string, end time.Time) summary.SessionRecord {
	return summary.SessionRecord{
		ID:          id,
		CallID:      "CA-" + id,
		StartTime:   end.Add(-4 * time.Minute),
		EndTime:     end,
		SessionType: session.SessionSubstantive,
		EndReason:   "closing_phrase",
		Turns: []session.Turn{
			{Role: session.RoleAssistant, Text: "Morning.", Kind: session.KindOpener},
			{Role: session.RoleUser, Text: "Report first", Kind: session.KindConversation},
		},
		Decisions: []session.Decision{
			{Text: "I'll write the report", Source: session.SourceCommitment},
			{Text: "Added: gym", Source: session.SourceTool},
		},
		Summary: summary.Summary{
			KeyDecisions: []string{"Report first"},
			Commitments:  []summary.Commitment{{Task: "Report", Timeframe: "9am"}},
			MoodEnergy:   "positive mood, high energy",
			Outcome:      summary.OutcomeProductive,
			Source:       summary.SourceLLM,
		},
		Insights: summary.Insights{Date: "2026-03-09", Priorities: []string{"Report"}, Mood: "Positive", Energy: "High"},
	}
}

type failingSink struct {
	calls int
	mu    sync.Mutex
}

func (f *failingSink) AppendSession(context.Context, summary.SessionRecord) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("sink down")
}

func (f *failingSink) AppendMissedCall(context.Context, summary.MissedCallRecord) error {
	return errors.New("sink down")
}

// =============================================================================
// Badger Tests
// =============================================================================

func TestBadgerJournal_Turns(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for i := 2; i >= 0; i-- {
		require.NoError(t, j.AppendTurn(ctx, TurnLogRecord{
			ID: "id", CallID: "CA1", Index: i, Utterance: "u", Reply: "r", Timestamp: t0,
		}))
	}
	require.NoError(t, j.AppendTurn(ctx, TurnLogRecord{ID: "x", CallID: "CA2", Index: 0}))

	got, err := j.Turns(ctx, "CA1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, rec := range got {
		assert.Equal(t, i, rec.Index, "turns come back in order")
	}

	none, err := j.Turns(ctx, "CA")
	require.NoError(t, err)
	assert.Empty(t, none, "prefix must not match other calls")
}

func TestBadgerJournal_RecentSessions(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.AppendSession(ctx, sessionRecord("a", t0)))
	require.NoError(t, j.AppendSession(ctx, sessionRecord("c", t0.Add(2*time.Hour))))
	require.NoError(t, j.AppendSession(ctx, sessionRecord("b", t0.Add(time.Hour))))

	all, err := j.RecentSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, summary.OutcomeProductive, all[0].Summary.Outcome)
	assert.Equal(t, 4*time.Minute, all[0].Duration())

	two, err := j.RecentSessions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestBadgerJournal_MissedCalls(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.AppendMissedCall(ctx, summary.MissedCallRecord{ID: "m1", CallID: "CA9", EndTime: t0, Reason: "voicemail"}))

	missed, err := j.RecentMissedCalls(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missed, 1)
	assert.Equal(t, "CA9", missed[0].CallID)

	sessions, err := j.RecentSessions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestBadgerJournal_CanceledContext(t *testing.T) {
	j := openTestJournal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, j.AppendSession(ctx, sessionRecord("a", t0)), context.Canceled)
}

func TestBadgerJournal_CloseTwice(t *testing.T) {
	j, err := OpenBadgerJournal(InMemoryBadgerConfig())
	require.NoError(t, err)
	require.NoError(t, j.Close())
	assert.NoError(t, j.Close())
}

func TestOpenBadgerJournal_RequiresPath(t *testing.T) {
	_, err := OpenBadgerJournal(BadgerConfig{})
	assert.Error(t, err)
}

func TestOpenBadgerJournal_OnDisk(t *testing.T) {
	cfg := DefaultBadgerConfig(t.TempDir())
	cfg.GCInterval = time.Hour
	j, err := OpenBadgerJournal(cfg)
	require.NoError(t, err)
	require.NoError(t, j.AppendSession(context.Background(), sessionRecord("a", t0)))
	require.NoError(t, j.Close())
}

// =============================================================================
// Fanout Tests
// =============================================================================

func TestFanout_KeepsWritingAfterFailure(t *testing.T) {
	bad := &failingSink{}
	good := openTestJournal(t)
	f := NewFanout(bad, nil, good)
	ctx := context.Background()

	assert.Equal(t, 2, f.Len())

	err := f.AppendSession(ctx, sessionRecord("a", t0))
	assert.Error(t, err)
	assert.Equal(t, 1, bad.calls)

	stored, err := good.RecentSessions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	// failingSink has no turn log, so only the journal sees the turn.
	require.NoError(t, f.AppendTurn(ctx, TurnLogRecord{ID: "t", CallID: "CA-a"}))
	turns, err := good.Turns(ctx, "CA-a")
	require.NoError(t, err)
	assert.Len(t, turns, 1)

	assert.Error(t, f.AppendMissedCall(ctx, summary.MissedCallRecord{ID: "m"}))
	assert.NoError(t, f.Close())
}

func TestNop(t *testing.T) {
	var j Journal = Nop{}
	ctx := context.Background()
	assert.NoError(t, j.AppendTurn(ctx, TurnLogRecord{}))
	assert.NoError(t, j.AppendSession(ctx, summary.SessionRecord{}))
	assert.NoError(t, j.AppendMissedCall(ctx, summary.MissedCallRecord{}))
	assert.NoError(t, j.Close())
}

// =============================================================================
// Influx Tests
// =============================================================================

func TestInfluxJournal_WritesLineProtocol(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		queries = append(queries, r.URL.Path+"?"+r.URL.RawQuery)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	j, err := NewInfluxJournal(InfluxConfig{URL: srv.URL, Token: "tok", Org: "coach", Bucket: "calls"})
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	require.NoError(t, j.AppendSession(ctx, sessionRecord("a", t0)))
	require.NoError(t, j.AppendMissedCall(ctx, summary.MissedCallRecord{ID: "m", EndTime: t0, Reason: "voicemail"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Contains(t, queries[0], "/api/v2/write")
	assert.Contains(t, queries[0], "bucket=calls")
	assert.True(t, strings.HasPrefix(bodies[0], SessionMeasurement+","), bodies[0])
	assert.Contains(t, bodies[0], "outcome=productive")
	assert.Contains(t, bodies[0], "commitments=1i")
	assert.Contains(t, bodies[0], "tool_actions=1i")
	assert.Contains(t, bodies[0], "user_turns=1i")
	assert.True(t, strings.HasPrefix(bodies[1], MissedMeasurement+",reason=voicemail"), bodies[1])
}

func TestNewInfluxJournal_RequiresBucket(t *testing.T) {
	_, err := NewInfluxJournal(InfluxConfig{URL: "http://localhost:8086", Org: "o"})
	assert.Error(t, err)
}

// =============================================================================
// Weaviate Tests
// =============================================================================

func TestWeaviateJournal_AppendSession(t *testing.T) {
	var mu sync.Mutex
	var batch struct {
		Objects []map[string]any `json:"objects"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/batch/objects"):
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			_ = json.Unmarshal(body, &batch)
			mu.Unlock()
			_, _ = w.Write([]byte(`[{"class":"CoachingSession","result":{"status":"SUCCESS"}}]`))
		case strings.HasSuffix(r.URL.Path, "/meta"):
			_, _ = w.Write([]byte(`{"version":"1.35.2"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	j, err := NewWeaviateJournal(srv.URL)
	require.NoError(t, err)

	rec := sessionRecord("5f8a3c1e-8d2b-4c6a-9e4f-1a2b3c4d5e6f", t0)
	require.NoError(t, j.AppendSession(context.Background(), rec))
	require.NoError(t, j.AppendMissedCall(context.Background(), summary.MissedCallRecord{}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batch.Objects, 1)
	created := batch.Objects[0]
	assert.Equal(t, SessionClass, created["class"])
	assert.Equal(t, rec.ID, created["id"])
	props, ok := created["properties"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, rec.CallID, props["call_sid"])
	assert.Equal(t, "productive", props["outcome"])
}

func TestWeaviateJournal_AppendSessionItemError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"class":"CoachingSession","result":{"errors":{"error":[{"message":"class not found"}]}}}]`))
	}))
	defer srv.Close()

	j, err := NewWeaviateJournal(srv.URL)
	require.NoError(t, err)

	err = j.AppendSession(context.Background(), sessionRecord("5f8a3c1e-8d2b-4c6a-9e4f-1a2b3c4d5e6f", t0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class not found")
}

func TestNewWeaviateJournal_InvalidURL(t *testing.T) {
	_, err := NewWeaviateJournal("weaviate:8080")
	assert.Error(t, err)
}

func TestSummaryText(t *testing.T) {
	got := SummaryText(sessionRecord("a", t0).Summary)
	assert.Equal(t, "Decisions: Report first. Commitments: Report (9am). Outcome: productive.", got)

	assert.Equal(t, "Outcome: brief.", SummaryText(summary.Summary{Outcome: summary.OutcomeBrief}))
}
