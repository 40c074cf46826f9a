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
	"sort"
	"time"

	"github.com/AleutianAI/MorningCoach/services/orchestrator/session"
)

const (
	workdayStartHour = 9
	workdayEndHour   = 18
	maxSlots         = 3
)

// Slot is a free interval on the calendar.
type Slot struct {
	Start time.Time
	End   time.Time
}

// FreeSlots finds gaps of at least d between now and the end of the workday.
//
// Description:
//
//	The search window runs from the later of now and 09:00 to 18:00 on
//	now's date. Events are walked in start order and every gap of at least
//	d becomes a slot. An event without an end time is treated as lasting
//	defaultEventLength. At most three slots are returned.
//
// Inputs:
//
//	events - The day's events, in any order.
//	now - Current time in the caller's location.
//	d - Requested duration. Zero or negative uses defaultEventLength.
//
// Outputs:
//
//	[]Slot - Up to three slots, earliest first. Empty when the day is full.
func FreeSlots(events []session.CalendarEvent, now time.Time, d time.Duration) []Slot {
	if d <= 0 {
		d = defaultEventLength
	}
	y, m, day := now.Date()
	loc := now.Location()
	cursor := time.Date(y, m, day, workdayStartHour, 0, 0, 0, loc)
	dayEnd := time.Date(y, m, day, workdayEndHour, 0, 0, 0, loc)
	if now.After(cursor) {
		cursor = now
	}

	sorted := make([]session.CalendarEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var slots []Slot
	for _, ev := range sorted {
		if len(slots) == maxSlots || !cursor.Before(dayEnd) {
			break
		}
		end := eventEnd(ev)
		if !end.After(cursor) {
			continue
		}
		gapEnd := ev.Start
		if gapEnd.After(dayEnd) {
			gapEnd = dayEnd
		}
		if gapEnd.Sub(cursor) >= d {
			slots = append(slots, Slot{Start: cursor, End: gapEnd})
		}
		if end.After(cursor) {
			cursor = end
		}
	}
	if len(slots) < maxSlots && dayEnd.Sub(cursor) >= d {
		slots = append(slots, Slot{Start: cursor, End: dayEnd})
	}
	return slots
}

func eventEnd(ev session.CalendarEvent) time.Time {
	if ev.End != nil {
		return *ev.End
	}
	return ev.Start.Add(defaultEventLength)
}
