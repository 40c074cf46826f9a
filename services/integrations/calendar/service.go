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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/tools"
)

// DefaultServiceTimeout bounds each CalendarService request.
const DefaultServiceTimeout = 15 * time.Second

// Service is a tools.Calendar backed by a CalendarService instance.
//
// Endpoints:
//
//	GET    /events/{YYYY-MM-DD}
//	POST   /events
//	PUT    /events/{id}
//	DELETE /events/{id}
type Service struct {
	baseURL    string
	httpClient *http.Client
	loc        *time.Location
}

// NewService creates the CalendarService backend. An empty baseURL
// returns ErrNotConfigured.
func NewService(baseURL string, loc *time.Location) (*Service, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, tools.ErrNotConfigured
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid calendar service URL: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultServiceTimeout},
		loc:        loc,
	}, nil
}

// serviceTime accepts both "2026-03-09T09:00:00Z" and
// {"dateTime": "2026-03-09T09:00:00Z"}.
type serviceTime struct {
	time.Time
}

func (t *serviceTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	var obj struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	var err error
	switch {
	case obj.DateTime != "":
		t.Time, err = time.Parse(time.RFC3339, obj.DateTime)
	case obj.Date != "":
		t.Time, err = time.Parse("2006-01-02", obj.Date)
	}
	return err
}

type serviceEvent struct {
	ID          string       `json:"id"`
	Summary     string       `json:"summary"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Start       serviceTime  `json:"start"`
	End         *serviceTime `json:"end"`
}

func (e serviceEvent) toSession() session.CalendarEvent {
	out := session.CalendarEvent{
		ID:          e.ID,
		Title:       e.Summary,
		Description: e.Description,
		Start:       e.Start.Time,
	}
	if out.Title == "" {
		out.Title = e.Title
	}
	if out.Title == "" {
		out.Title = noTitle
	}
	if e.End != nil && !e.End.IsZero() {
		end := e.End.Time
		out.End = &end
	}
	return out
}

type serviceEventBody struct {
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
}

func toServiceBody(in tools.EventInput) serviceEventBody {
	body := serviceEventBody{Summary: in.Title, Description: in.Description}
	if !in.Start.IsZero() {
		body.Start = in.Start.UTC().Format(time.RFC3339)
	}
	if !in.End.IsZero() {
		body.End = in.End.UTC().Format(time.RFC3339)
	}
	return body
}

type mutationResponse struct {
	EventID string        `json:"eventId"`
	Event   *serviceEvent `json:"event"`
}

// CreateEvent implements tools.Calendar.
func (s *Service) CreateEvent(ctx context.Context, in tools.EventInput) (session.CalendarEvent, error) {
	var resp mutationResponse
	if err := s.do(ctx, http.MethodPost, "/events", toServiceBody(in), &resp); err != nil {
		return session.CalendarEvent{}, err
	}
	return s.mutated(resp, "", in), nil
}

// UpdateEvent implements tools.Calendar.
func (s *Service) UpdateEvent(ctx context.Context, id string, in tools.EventInput) (session.CalendarEvent, error) {
	var resp mutationResponse
	if err := s.do(ctx, http.MethodPut, "/events/"+url.PathEscape(id), toServiceBody(in), &resp); err != nil {
		return session.CalendarEvent{}, err
	}
	return s.mutated(resp, id, in), nil
}

// DeleteEvent implements tools.Calendar.
func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	return s.do(ctx, http.MethodDelete, "/events/"+url.PathEscape(id), nil, nil)
}

// ListEventsForDay implements tools.Calendar.
func (s *Service) ListEventsForDay(ctx context.Context, day time.Time) ([]session.CalendarEvent, error) {
	var resp struct {
		Events []serviceEvent `json:"events"`
	}
	path := "/events/" + day.In(s.loc).Format("2006-01-02")
	if err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]session.CalendarEvent, len(resp.Events))
	for i, e := range resp.Events {
		out[i] = e.toSession()
	}
	return out, nil
}

// mutated builds the resulting event, falling back to the input when the
// service does not echo it.
func (s *Service) mutated(resp mutationResponse, id string, in tools.EventInput) session.CalendarEvent {
	if resp.Event != nil {
		ev := resp.Event.toSession()
		if ev.ID == "" {
			ev.ID = resp.EventID
		}
		return ev
	}
	if resp.EventID != "" {
		id = resp.EventID
	}
	ev := session.CalendarEvent{ID: id, Title: in.Title, Description: in.Description, Start: in.Start}
	if !in.End.IsZero() {
		end := in.End
		ev.End = &end
	}
	return ev
}

func (s *Service) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s failed: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
