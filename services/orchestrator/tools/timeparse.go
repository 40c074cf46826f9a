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
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	relativePattern = regexp.MustCompile(`\bin\s+(\d+|an?|one)\s+(hours?|hrs?|minutes?|mins?)\b`)
	clockPattern    = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?(?:\s|$|[^\w])`)
	noonPattern     = regexp.MustCompile(`\bnoon\b`)
	tomorrowWord    = regexp.MustCompile(`\btomorrow\b`)
	todayWord       = regexp.MustCompile(`\btoday\b`)
)

// ParseTime resolves a spoken time expression against now.
//
// Description:
//
//	Understands "3pm", "3:30 pm", "at 15", "noon", "tomorrow at 9" and
//	"in 2 hours". A bare hour below 8 without am or pm is taken as PM,
//	since nobody books a 3am meeting from a morning call. "12am" is
//	midnight and "12pm" is noon. A clock time that has already passed
//	today rolls to tomorrow unless the caller said "today".
//
// Inputs:
//
//	expr - The raw time phrase.
//	now - Current time in the caller's location.
//
// Outputs:
//
//	time.Time - Resolved instant in now's location.
//	bool - False when no clock time could be found.
//
// Limitations:
//
//	Weekday names and dates are not understood.
func ParseTime(expr string, now time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(expr))
	if s == "" {
		return time.Time{}, false
	}

	if m := relativePattern.FindStringSubmatch(s); m != nil {
		n := 1
		if v, err := strconv.Atoi(m[1]); err == nil {
			n = v
		}
		unit := time.Hour
		if strings.HasPrefix(m[2], "m") {
			unit = time.Minute
		}
		return now.Add(time.Duration(n) * unit), true
	}

	day := now
	explicitDay := todayWord.MatchString(s)
	if tomorrowWord.MatchString(s) {
		day = now.AddDate(0, 0, 1)
		explicitDay = true
	}

	hour, minute := -1, 0
	if noonPattern.MatchString(s) {
		hour = 12
	} else if m := clockPattern.FindStringSubmatch(s + " "); m != nil {
		h, _ := strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		meridiem := strings.ReplaceAll(m[3], ".", "")
		switch {
		case meridiem == "pm" && h < 12:
			h += 12
		case meridiem == "am" && h == 12:
			h = 0
		case meridiem == "" && h < 8:
			h += 12
		}
		hour = h
	}
	if hour < 0 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	t := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
	if !explicitDay && t.Before(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t, true
}

// ParseDay returns the calendar day an expression refers to: tomorrow when
// it says so, otherwise today.
func ParseDay(expr string, now time.Time) time.Time {
	if tomorrowWord.MatchString(strings.ToLower(expr)) {
		return now.AddDate(0, 0, 1)
	}
	return now
}

// FormatClock renders t as "3:04 PM".
func FormatClock(t time.Time) string {
	return t.Format("3:04 PM")
}

// formatWhen renders t relative to now: "today at 3:00 PM",
// "tomorrow at 9:00 AM" or "Jan 2 at 9:00 AM".
func formatWhen(t, now time.Time) string {
	switch {
	case sameDay(t, now):
		return "today at " + FormatClock(t)
	case sameDay(t, now.AddDate(0, 0, 1)):
		return "tomorrow at " + FormatClock(t)
	default:
		return t.Format("Jan 2") + " at " + FormatClock(t)
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
