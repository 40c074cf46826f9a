// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/intent"
	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

const (
	// DefaultTimeout bounds a single tool action.
	DefaultTimeout = 8 * time.Second

	defaultEventLength = 60 * time.Minute
	defaultEventTitle  = "New Event"
	eventDescription   = "Added by Morning Coach"
	defaultPriority    = "Medium"
	maxListedEvents    = 5
)

// Spoken messages for outcomes that do not depend on the request.
const (
	msgTasksNotConfigured    = "Tasks not configured."
	msgCalendarNotConfigured = "Calendar not configured."
	msgSomethingWrong        = "Something went wrong."
)

// =============================================================================
// Executor
// =============================================================================

// Executor runs tool intents against the configured backends.
type Executor struct {
	tasks    TaskBoard
	calendar Calendar
	now      func() time.Time
	loc      *time.Location
	timeout  time.Duration
	tracer   trace.Tracer
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithLocation sets the caller's time zone. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(e *Executor) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithTimeout bounds each action. Zero keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewExecutor creates an Executor. Either backend may be nil, in which case
// actions that need it report "not configured".
func NewExecutor(tasks TaskBoard, calendar Calendar, opts ...Option) *Executor {
	e := &Executor{
		tasks:    tasks,
		calendar: calendar,
		now:      time.Now,
		loc:      time.Local,
		timeout:  DefaultTimeout,
		tracer:   otel.Tracer("morningcoach.tools"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type handlerFunc func(e *Executor, ctx context.Context, ti intent.ToolIntent) Result

// dispatch maps each action to its handler. Each handler calls exactly one
// backend.
var dispatch = map[intent.Action]handlerFunc{
	intent.ActionAddTask:         (*Executor).addTask,
	intent.ActionAddEvent:        (*Executor).addEvent,
	intent.ActionRescheduleEvent: (*Executor).rescheduleEvent,
	intent.ActionCancelEvent:     (*Executor).cancelEvent,
	intent.ActionQueryCalendar:   (*Executor).queryCalendar,
	intent.ActionQueryFreeSlots:  (*Executor).queryFreeSlots,
}

// Execute runs one tool intent.
//
// Description:
//
//	Looks up the handler for ti.Action and runs it under the executor's
//	timeout. There are no retries. Backend failures become a failed Result
//	with a short spoken message; the raw error is only logged.
//
// Inputs:
//
//	ctx - Parent context. Cancellation aborts the backend call.
//	ti - The classified intent.
//
// Outputs:
//
//	Result - Always populated. Success is false on any failure.
func (e *Executor) Execute(ctx context.Context, ti intent.ToolIntent) Result {
	ctx, span := e.tracer.Start(ctx, "tools.Execute",
		trace.WithAttributes(attribute.String("tool.action", string(ti.Action))))
	defer span.End()

	handler, ok := dispatch[ti.Action]
	if !ok {
		slog.Warn("Unknown tool action", "action", ti.Action)
		return Result{Action: ti.Action, Message: msgSomethingWrong}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res := handler(e, ctx, ti)
	res.Action = ti.Action
	span.SetAttributes(
		attribute.Bool("tool.success", res.Success),
		attribute.Bool("tool.needs_clarification", res.NeedsClarification),
	)
	return res
}

// =============================================================================
// Task Actions
// =============================================================================

func (e *Executor) addTask(ctx context.Context, ti intent.ToolIntent) Result {
	if e.tasks == nil {
		return Result{NotConfigured: true, Message: msgTasksNotConfigured}
	}
	if ti.Title == "" {
		return clarify("What should the task say?")
	}
	if _, err := e.tasks.CreateTask(ctx, TaskInput{Title: ti.Title, Priority: defaultPriority}); err != nil {
		return e.failure("add_task", err, msgTasksNotConfigured)
	}
	return Result{
		Success: true,
		Item:    ti.Title,
		Message: fmt.Sprintf("Added %q to your tasks.", ti.Title),
	}
}

// =============================================================================
// Calendar Actions
// =============================================================================

func (e *Executor) addEvent(ctx context.Context, ti intent.ToolIntent) Result {
	if e.calendar == nil {
		return Result{NotConfigured: true, Message: msgCalendarNotConfigured}
	}
	if ti.Title == "" && ti.TimeExpr == "" {
		return clarify("What should I schedule, and when?")
	}
	title := ti.Title
	if title == "" {
		title = defaultEventTitle
	}
	now := e.clock()
	start, ok := ParseTime(ti.TimeExpr, now)
	if !ok {
		return clarify(fmt.Sprintf("What time should I put %q on your calendar?", title))
	}
	length := defaultEventLength
	if ti.DurationMinutes > 0 {
		length = time.Duration(ti.DurationMinutes) * time.Minute
	}

	ev, err := e.calendar.CreateEvent(ctx, EventInput{
		Title:       title,
		Description: eventDescription,
		Start:       start,
		End:         start.Add(length),
	})
	if err != nil {
		return e.failure("add_event", err, msgCalendarNotConfigured)
	}
	return Result{
		Success: true,
		Item:    title,
		EventID: ev.ID,
		Message: fmt.Sprintf("Added %q to your calendar %s.", title, formatWhen(start, now)),
	}
}

func (e *Executor) rescheduleEvent(ctx context.Context, ti intent.ToolIntent) Result {
	if e.calendar == nil {
		return Result{NotConfigured: true, Message: msgCalendarNotConfigured}
	}
	if ti.Search == "" {
		return clarify("Which event should I move?")
	}
	now := e.clock()
	if ti.TimeExpr == "" {
		return clarify(fmt.Sprintf("When should I move %q to?", ti.Search))
	}
	newStart, ok := ParseTime(ti.TimeExpr, now)
	if !ok {
		return clarify(fmt.Sprintf("When should I move %q to?", ti.Search))
	}

	ev, res, ok := e.findOne(ctx, ti.Search, now)
	if !ok {
		return res
	}
	length := eventEnd(ev).Sub(ev.Start)
	if length <= 0 {
		length = defaultEventLength
	}
	if _, err := e.calendar.UpdateEvent(ctx, ev.ID, EventInput{
		Title:       ev.Title,
		Description: ev.Description,
		Start:       newStart,
		End:         newStart.Add(length),
	}); err != nil {
		return e.failure("reschedule_event", err, msgCalendarNotConfigured)
	}
	return Result{
		Success: true,
		Item:    ev.Title,
		EventID: ev.ID,
		Message: fmt.Sprintf("Moved %q to %s.", ev.Title, formatWhen(newStart, now)),
	}
}

func (e *Executor) cancelEvent(ctx context.Context, ti intent.ToolIntent) Result {
	if e.calendar == nil {
		return Result{NotConfigured: true, Message: msgCalendarNotConfigured}
	}
	if ti.Search == "" {
		return clarify("Which event should I cancel?")
	}
	ev, res, ok := e.findOne(ctx, ti.Search, e.clock())
	if !ok {
		return res
	}
	if err := e.calendar.DeleteEvent(ctx, ev.ID); err != nil {
		return e.failure("cancel_event", err, msgCalendarNotConfigured)
	}
	return Result{
		Success: true,
		Item:    ev.Title,
		EventID: ev.ID,
		Message: fmt.Sprintf("Cancelled %q.", ev.Title),
	}
}

func (e *Executor) queryCalendar(ctx context.Context, ti intent.ToolIntent) Result {
	if e.calendar == nil {
		return Result{NotConfigured: true, Message: msgCalendarNotConfigured}
	}
	now := e.clock()
	day := ParseDay(ti.TimeExpr, now)
	label := "today"
	if !sameDay(day, now) {
		label = "tomorrow"
	}
	events, err := e.calendar.ListEventsForDay(ctx, day)
	if err != nil {
		return e.failure("query_calendar", err, msgCalendarNotConfigured)
	}
	if len(events) == 0 {
		return Result{Success: true, Message: fmt.Sprintf("Your calendar is clear %s.", label)}
	}

	listed := make([]string, 0, maxListedEvents)
	for i, ev := range events {
		if i == maxListedEvents {
			break
		}
		listed = append(listed, describeEvent(ev, e.loc))
	}
	noun := "events"
	if len(events) == 1 {
		noun = "event"
	}
	msg := fmt.Sprintf("You have %d %s %s: %s.", len(events), noun, label, strings.Join(listed, ", "))
	return Result{Success: true, Message: msg}
}

func (e *Executor) queryFreeSlots(ctx context.Context, ti intent.ToolIntent) Result {
	if e.calendar == nil {
		return Result{NotConfigured: true, Message: msgCalendarNotConfigured}
	}
	now := e.clock()
	length := defaultEventLength
	if ti.DurationMinutes > 0 {
		length = time.Duration(ti.DurationMinutes) * time.Minute
	}
	events, err := e.calendar.ListEventsForDay(ctx, now)
	if err != nil {
		return e.failure("query_free_slots", err, msgCalendarNotConfigured)
	}
	slots := FreeSlots(events, now, length)
	if len(slots) == 0 {
		return Result{Success: true, Message: fmt.Sprintf("No free %d-minute slots left today.", int(length.Minutes()))}
	}
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = FormatClock(s.Start) + " to " + FormatClock(s.End)
	}
	return Result{Success: true, Message: "You're free " + joinSpoken(parts) + "."}
}

// =============================================================================
// Helpers
// =============================================================================

// findOne resolves search to exactly one event on today's or tomorrow's
// calendar. When it returns false the Result explains why. An event that
// crosses midnight is listed on both days and counted once.
func (e *Executor) findOne(ctx context.Context, search string, now time.Time) (session.CalendarEvent, Result, bool) {
	var matches []session.CalendarEvent
	seen := make(map[string]bool)
	needle := strings.ToLower(search)
	for _, day := range []time.Time{now, now.AddDate(0, 0, 1)} {
		events, err := e.calendar.ListEventsForDay(ctx, day)
		if err != nil {
			return session.CalendarEvent{}, e.failure("find_event", err, msgCalendarNotConfigured), false
		}
		for _, ev := range events {
			if !strings.Contains(strings.ToLower(ev.Title), needle) {
				continue
			}
			if ev.ID != "" {
				if seen[ev.ID] {
					continue
				}
				seen[ev.ID] = true
			}
			matches = append(matches, ev)
		}
	}

	switch len(matches) {
	case 0:
		return session.CalendarEvent{}, Result{Message: fmt.Sprintf("No events found matching %q.", search)}, false
	case 1:
		return matches[0], Result{}, true
	}
	candidates := make([]string, len(matches))
	for i, ev := range matches {
		candidates[i] = describeEvent(ev, e.loc)
	}
	return session.CalendarEvent{}, Result{
		NeedsClarification: true,
		Candidates:         candidates,
		Message: fmt.Sprintf("Multiple events found matching %q: %s. Please be more specific.",
			search, strings.Join(candidates, ", ")),
	}, false
}

// failure maps a backend error to a spoken Result.
func (e *Executor) failure(op string, err error, notConfigured string) Result {
	if errors.Is(err, ErrNotConfigured) {
		return Result{NotConfigured: true, Message: notConfigured}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("Tool backend timed out", "op", op, "timeout", e.timeout)
	} else {
		slog.Error("Tool backend failed", "op", op, "error", err)
	}
	return Result{Message: msgSomethingWrong}
}

func (e *Executor) clock() time.Time {
	return e.now().In(e.loc)
}

func clarify(question string) Result {
	return Result{NeedsClarification: true, Message: question}
}

func describeEvent(ev session.CalendarEvent, loc *time.Location) string {
	return ev.Title + " at " + FormatClock(ev.Start.In(loc))
}

// joinSpoken joins "a", "a and b", "a, b, and c".
func joinSpoken(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
}
