// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dayplan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

type fakeEvents struct {
	calls  atomic.Int32
	events []session.CalendarEvent
	err    error
	gate   chan struct{}
}

func (f *fakeEvents) ListEventsForDay(ctx context.Context, _ time.Time) ([]session.CalendarEvent, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.events, f.err
}

type fakeTasks struct {
	calls atomic.Int32
	tasks []session.Task
	err   error
}

func (f *fakeTasks) TodayTasks(context.Context) ([]session.Task, error) {
	f.calls.Add(1)
	return f.tasks, f.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func newTestProvider(ev EventSource, clock *fakeClock, tasks ...TaskSource) *Provider {
	return New(ev, tasks, Options{Clock: clock.Now, Location: time.UTC})
}

func TestTodayPlan_MergesAndSorts(t *testing.T) {
	late, early := at(15, 0), at(9, 0)
	ev := &fakeEvents{events: []session.CalendarEvent{
		{ID: "b", Title: "Review", Start: late},
		{ID: "a", Title: "Standup", Start: early},
	}}
	habits := &fakeTasks{tasks: []session.Task{{ID: "h1", Text: "Stretch", Priority: 1}}}
	board := &fakeTasks{tasks: []session.Task{
		{ID: "n1", Text: "Quarterly report", Priority: 2},
		{ID: "n2", Text: "stretch", Priority: 0.5},
	}}
	clock := &fakeClock{now: at(7, 0)}

	plan, err := newTestProvider(ev, clock, habits, board).TodayPlan(context.Background())
	require.NoError(t, err)

	require.Len(t, plan.Events, 2)
	assert.Equal(t, "Standup", plan.Events[0].Title)
	assert.Equal(t, "Review", plan.Events[1].Title)

	require.Len(t, plan.Tasks, 2)
	assert.Equal(t, "Quarterly report", plan.Tasks[0].Text)
	assert.Equal(t, "Stretch", plan.Tasks[1].Text)
}

func TestTodayPlan_PartialFailureTolerated(t *testing.T) {
	ev := &fakeEvents{err: errors.New("calendar down")}
	tasks := &fakeTasks{tasks: []session.Task{{ID: "1", Text: "Email", Priority: 1}}}
	clock := &fakeClock{now: at(7, 0)}

	plan, err := newTestProvider(ev, clock, tasks).TodayPlan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Events)
	assert.Len(t, plan.Tasks, 1)
}

func TestTodayPlan_AllFailed(t *testing.T) {
	ev := &fakeEvents{err: errors.New("calendar down")}
	tasks := &fakeTasks{err: errors.New("board down")}
	clock := &fakeClock{now: at(7, 0)}
	p := newTestProvider(ev, clock, tasks)

	plan, err := p.TodayPlan(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, plan.IsEmpty())

	// Failures are not cached.
	_, _ = p.TodayPlan(context.Background())
	assert.Equal(t, int32(2), ev.calls.Load())
}

func TestTodayPlan_NoSources(t *testing.T) {
	clock := &fakeClock{now: at(7, 0)}
	_, err := newTestProvider(nil, clock).TodayPlan(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestTodayPlan_Cache(t *testing.T) {
	ev := &fakeEvents{}
	tasks := &fakeTasks{tasks: []session.Task{{ID: "1", Text: "Email"}}}
	clock := &fakeClock{now: at(7, 0)}
	p := newTestProvider(ev, clock, tasks)
	ctx := context.Background()

	_, err := p.TodayPlan(ctx)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = p.TodayPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), tasks.calls.Load(), "second call within MaxAge is served from cache")

	clock.Advance(5 * time.Minute)
	_, err = p.TodayPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), tasks.calls.Load(), "expired entry is refetched")

	p.Invalidate()
	_, err = p.TodayPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), tasks.calls.Load(), "invalidate forces a refetch")
}

func TestTodayPlan_CacheReturnsCopy(t *testing.T) {
	tasks := &fakeTasks{tasks: []session.Task{{ID: "1", Text: "Email"}}}
	clock := &fakeClock{now: at(7, 0)}
	p := newTestProvider(nil, clock, tasks)

	first, err := p.TodayPlan(context.Background())
	require.NoError(t, err)
	first.Tasks[0].Text = "mutated"

	second, err := p.TodayPlan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Email", second.Tasks[0].Text)
}

func TestTodayPlan_ConcurrentCallersShareFetch(t *testing.T) {
	ev := &fakeEvents{gate: make(chan struct{})}
	clock := &fakeClock{now: at(7, 0)}
	p := newTestProvider(ev, clock)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.TodayPlan(context.Background())
		}(i)
	}
	require.Eventually(t, func() bool { return ev.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(ev.gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), ev.calls.Load())
}

func TestTodayPlan_CallerCancellation(t *testing.T) {
	ev := &fakeEvents{gate: make(chan struct{})}
	defer close(ev.gate)
	clock := &fakeClock{now: at(7, 0)}
	p := newTestProvider(ev, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.TodayPlan(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
