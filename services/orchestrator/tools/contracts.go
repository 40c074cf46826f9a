// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools executes side-effecting and querying actions requested by
// the caller: adding tasks, creating, moving and cancelling calendar events,
// and answering calendar and free-time questions.
//
// The executor never returns an error. Every outcome, including a missing
// backend or an ambiguous request, is a Result the coach can speak.
//
// Thread Safety:
//
//	An Executor is safe for concurrent use if its TaskBoard and Calendar are.
package tools

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/intent"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

// ErrNotConfigured is returned by a backend that lacks credentials or IDs.
var ErrNotConfigured = errors.New("tools: backend not configured")

// =============================================================================
// Provider Contracts
// =============================================================================

// TaskInput describes a task to create.
type TaskInput struct {
	Title    string
	Priority string
}

// TaskRef identifies a created task.
type TaskRef struct {
	ID  string
	URL string
}

// TaskBoard creates tasks in the caller's task system.
type TaskBoard interface {
	CreateTask(ctx context.Context, in TaskInput) (TaskRef, error)
}

// EventInput describes a calendar event to create or update.
type EventInput struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

// Calendar manages events on the caller's calendar.
type Calendar interface {
	CreateEvent(ctx context.Context, in EventInput) (session.CalendarEvent, error)
	UpdateEvent(ctx context.Context, id string, in EventInput) (session.CalendarEvent, error)
	DeleteEvent(ctx context.Context, id string) error

	// ListEventsForDay returns the events on day's calendar date, ordered by
	// start time.
	ListEventsForDay(ctx context.Context, day time.Time) ([]session.CalendarEvent, error)
}

// =============================================================================
// Result
// =============================================================================

// Result is the outcome of one tool action.
type Result struct {
	Action  intent.Action
	Success bool

	// Message is a complete spoken sentence describing the outcome.
	Message string

	// Item is the task text or event title acted on.
	Item    string
	EventID string

	// NeedsClarification is set when the request was ambiguous or missing
	// a parameter. Candidates lists the matching event descriptions.
	NeedsClarification bool
	Candidates         []string

	NotConfigured bool
}

// IsQuery reports whether the action only reads data.
func (r Result) IsQuery() bool {
	return r.Action == intent.ActionQueryCalendar || r.Action == intent.ActionQueryFreeSlots
}

// Decision returns the decision text a successful mutation records.
func (r Result) Decision() (string, bool) {
	if !r.Success || r.IsQuery() || r.Item == "" {
		return "", false
	}
	switch r.Action {
	case intent.ActionAddTask, intent.ActionAddEvent:
		return "Added: " + r.Item, true
	case intent.ActionRescheduleEvent:
		return "Moved: " + r.Item, true
	case intent.ActionCancelEvent:
		return "Cancelled: " + r.Item, true
	}
	return "", false
}
