// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/tools"
)

// =============================================================================
// Test Helpers
// =============================================================================

type recorded struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// newRecordingServer answers with handler and records every request.
func newRecordingServer(t *testing.T, handler func(r *http.Request) (int, string)) (*httptest.Server, func() []recorded) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()

		status, body := handler(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), reqs...)
	}
}

var (
	chicago = time.FixedZone("CST", -6*3600)
	day     = time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
)

func newTestGoogle(t *testing.T, srv *httptest.Server) *Google {
	t.Helper()
	g, err := NewGoogle(context.Background(), GoogleConfig{Location: time.UTC},
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	return g
}

// =============================================================================
// Google Tests
// =============================================================================

func TestNewGoogle_NotConfigured(t *testing.T) {
	_, err := NewGoogle(context.Background(), GoogleConfig{})
	assert.ErrorIs(t, err, tools.ErrNotConfigured)
}

func TestGoogle_ListEventsForDay(t *testing.T) {
	srv, requests := newRecordingServer(t, func(*http.Request) (int, string) {
		return 200, `{"items":[
			{"id":"a","summary":"Standup","start":{"dateTime":"2026-03-09T09:00:00Z"},"end":{"dateTime":"2026-03-09T09:15:00Z"}},
			{"id":"b","summary":"","start":{"date":"2026-03-09"}},
			{"id":"c","summary":"Gone","status":"cancelled","start":{"dateTime":"2026-03-09T10:00:00Z"}}
		]}`
	})
	g := newTestGoogle(t, srv)

	events, err := g.ListEventsForDay(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "Standup", events[0].Title)
	assert.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), events[0].Start.UTC())
	require.NotNil(t, events[0].End)
	assert.Equal(t, 15*time.Minute, events[0].End.Sub(events[0].Start))

	assert.Equal(t, "No Title", events[1].Title)
	assert.Nil(t, events[1].End)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/calendars/primary/events", reqs[0].Path)
	assert.Contains(t, reqs[0].Query, "singleEvents=true")
	assert.Contains(t, reqs[0].Query, "orderBy=startTime")
}

func TestGoogle_CreateUpdateDelete(t *testing.T) {
	srv, requests := newRecordingServer(t, func(r *http.Request) (int, string) {
		switch r.Method {
		case http.MethodDelete:
			return 204, ""
		default:
			return 200, `{"id":"ev9","summary":"Gym","start":{"dateTime":"2026-03-09T17:00:00Z"},"end":{"dateTime":"2026-03-09T18:00:00Z"}}`
		}
	})
	g := newTestGoogle(t, srv)
	ctx := context.Background()
	start := time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC)

	ev, err := g.CreateEvent(ctx, tools.EventInput{Title: "Gym", Description: "Added by Morning Coach", Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "ev9", ev.ID)

	_, err = g.UpdateEvent(ctx, "ev9", tools.EventInput{Start: start.Add(time.Hour), End: start.Add(2 * time.Hour)})
	require.NoError(t, err)

	require.NoError(t, g.DeleteEvent(ctx, "ev9"))

	reqs := requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "Gym", reqs[0].Body["summary"])
	assert.Equal(t, http.MethodPatch, reqs[1].Method)
	assert.Equal(t, "/calendars/primary/events/ev9", reqs[1].Path)
	_, hasSummary := reqs[1].Body["summary"]
	assert.False(t, hasSummary, "patch leaves the title alone")
	assert.Equal(t, http.MethodDelete, reqs[2].Method)
}

func TestGoogle_APIError(t *testing.T) {
	srv, _ := newRecordingServer(t, func(*http.Request) (int, string) {
		return 403, `{"error":{"code":403,"message":"forbidden"}}`
	})
	_, err := newTestGoogle(t, srv).ListEventsForDay(context.Background(), day)
	assert.Error(t, err)
}

// =============================================================================
// CalendarService Tests
// =============================================================================

func TestNewService_NotConfigured(t *testing.T) {
	_, err := NewService("  ", nil)
	assert.ErrorIs(t, err, tools.ErrNotConfigured)
}

func TestService_ListEventsForDay(t *testing.T) {
	srv, requests := newRecordingServer(t, func(*http.Request) (int, string) {
		return 200, `{"events":[
			{"id":"1","summary":"Dentist","start":{"dateTime":"2026-03-09T15:00:00Z"},"end":{"dateTime":"2026-03-09T16:00:00Z"}},
			{"id":"2","title":"Lunch","start":"2026-03-09T17:00:00Z","end":null},
			{"id":"3","start":"2026-03-09T19:00:00Z"}
		]}`
	})
	s, err := NewService(srv.URL+"/", chicago)
	require.NoError(t, err)

	events, err := s.ListEventsForDay(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Dentist", events[0].Title)
	require.NotNil(t, events[0].End)
	assert.Equal(t, "Lunch", events[1].Title)
	assert.Nil(t, events[1].End)
	assert.Equal(t, "No Title", events[2].Title)

	// 08:00 UTC is 03:00 in Chicago, still March 9.
	assert.Equal(t, "/events/2026-03-09", requests()[0].Path)
}

func TestService_Mutations(t *testing.T) {
	srv, requests := newRecordingServer(t, func(r *http.Request) (int, string) {
		switch r.Method {
		case http.MethodPost:
			return 200, `{"eventId":"new1"}`
		case http.MethodPut:
			return 200, `{"eventId":"new1","event":{"id":"new1","summary":"Gym","start":"2026-03-09T18:00:00Z"}}`
		default:
			return 200, `{}`
		}
	})
	s, err := NewService(srv.URL, time.UTC)
	require.NoError(t, err)
	ctx := context.Background()
	start := time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC)

	created, err := s.CreateEvent(ctx, tools.EventInput{Title: "Gym", Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "new1", created.ID)
	assert.Equal(t, "Gym", created.Title)
	require.NotNil(t, created.End)

	moved, err := s.UpdateEvent(ctx, "new1", tools.EventInput{Start: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), moved.Start)

	require.NoError(t, s.DeleteEvent(ctx, "new1"))

	reqs := requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "2026-03-09T17:00:00Z", reqs[0].Body["start"])
	assert.Equal(t, "/events/new1", reqs[1].Path)
	assert.Equal(t, http.MethodDelete, reqs[2].Method)
}

func TestService_ErrorStatus(t *testing.T) {
	srv, _ := newRecordingServer(t, func(*http.Request) (int, string) {
		return 500, `boom`
	})
	s, err := NewService(srv.URL, time.UTC)
	require.NoError(t, err)
	err = s.DeleteEvent(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
