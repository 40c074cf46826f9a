// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package calendar provides the calendar backends used by the tool
// executor and the day-plan provider.
//
// Two backends implement tools.Calendar:
//   - Google: the Google Calendar v3 API
//   - Service: a self-hosted CalendarService speaking plain JSON
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/tools"
)

const (
	// DefaultCalendarID is the signed-in user's main calendar.
	DefaultCalendarID = "primary"

	noTitle = "No Title"
)

// GoogleConfig configures the Google backend.
type GoogleConfig struct {
	AccessToken string
	CalendarID  string
	Location    *time.Location
}

// Google is a tools.Calendar backed by Google Calendar.
type Google struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
}

// NewGoogle creates the Google backend.
//
// Inputs:
//
//	ctx - Used for client construction only.
//	cfg - Access token and calendar. An empty token returns ErrNotConfigured.
//	opts - Extra client options, e.g. option.WithEndpoint in tests.
//
// Outputs:
//
//	*Google - Ready to use.
//	error - tools.ErrNotConfigured or a client construction error.
func NewGoogle(ctx context.Context, cfg GoogleConfig, opts ...option.ClientOption) (*Google, error) {
	if cfg.AccessToken == "" && len(opts) == 0 {
		return nil, tools.ErrNotConfigured
	}
	if cfg.AccessToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create google calendar service: %w", err)
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = DefaultCalendarID
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Google{svc: svc, calendarID: cfg.CalendarID, loc: cfg.Location}, nil
}

// CreateEvent implements tools.Calendar.
func (g *Google) CreateEvent(ctx context.Context, in tools.EventInput) (session.CalendarEvent, error) {
	ev, err := g.svc.Events.Insert(g.calendarID, g.toGoogle(in)).Context(ctx).Do()
	if err != nil {
		return session.CalendarEvent{}, fmt.Errorf("insert event: %w", err)
	}
	return g.fromGoogle(ev), nil
}

// UpdateEvent implements tools.Calendar. Only the fields set in in are
// changed.
func (g *Google) UpdateEvent(ctx context.Context, id string, in tools.EventInput) (session.CalendarEvent, error) {
	ev, err := g.svc.Events.Patch(g.calendarID, id, g.toGoogle(in)).Context(ctx).Do()
	if err != nil {
		return session.CalendarEvent{}, fmt.Errorf("patch event %s: %w", id, err)
	}
	return g.fromGoogle(ev), nil
}

// DeleteEvent implements tools.Calendar.
func (g *Google) DeleteEvent(ctx context.Context, id string) error {
	if err := g.svc.Events.Delete(g.calendarID, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

// ListEventsForDay implements tools.Calendar. Recurring events are
// expanded and results are ordered by start time.
func (g *Google) ListEventsForDay(ctx context.Context, day time.Time) ([]session.CalendarEvent, error) {
	day = day.In(g.loc)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, g.loc)
	end := start.AddDate(0, 0, 1)

	resp, err := g.svc.Events.List(g.calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]session.CalendarEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Status == "cancelled" {
			continue
		}
		out = append(out, g.fromGoogle(item))
	}
	return out, nil
}

func (g *Google) toGoogle(in tools.EventInput) *gcal.Event {
	ev := &gcal.Event{
		Summary:     in.Title,
		Description: in.Description,
	}
	if !in.Start.IsZero() {
		ev.Start = &gcal.EventDateTime{DateTime: in.Start.Format(time.RFC3339), TimeZone: g.loc.String()}
	}
	if !in.End.IsZero() {
		ev.End = &gcal.EventDateTime{DateTime: in.End.Format(time.RFC3339), TimeZone: g.loc.String()}
	}
	return ev
}

func (g *Google) fromGoogle(ev *gcal.Event) session.CalendarEvent {
	out := session.CalendarEvent{
		ID:          ev.Id,
		Title:       ev.Summary,
		Description: ev.Description,
	}
	if out.Title == "" {
		out.Title = noTitle
	}
	if t, err := g.parseWhen(ev.Start); err == nil {
		out.Start = t
	}
	if t, err := g.parseWhen(ev.End); err == nil {
		out.End = &t
	}
	return out
}

// parseWhen reads a timed or all-day boundary.
func (g *Google) parseWhen(w *gcal.EventDateTime) (time.Time, error) {
	switch {
	case w == nil:
		return time.Time{}, errors.New("no time")
	case w.DateTime != "":
		return time.Parse(time.RFC3339, w.DateTime)
	case w.Date != "":
		return time.ParseInLocation("2006-01-02", w.Date, g.loc)
	}
	return time.Time{}, errors.New("no time")
}
