// Package timeutil centralizes all operating-timezone arithmetic. The
// service posts on a Japanese calendar: day boundaries and wall-clock slot
// times are interpreted in JST (UTC+9) and stored as UTC instants.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Operating timezone. A fixed zone avoids a tzdata dependency at runtime;
// Japan has no daylight saving.
var jst = time.FixedZone("JST", 9*60*60)

// Location returns the operating timezone
func Location() *time.Location {
	return jst
}

// StartOfDay returns the start of the local calendar day containing t, as a
// UTC instant
func StartOfDay(t time.Time) time.Time {
	local := t.In(jst)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, jst)
	return start.UTC()
}

// DayWindow returns the [start, end) UTC instants of the local calendar day
// containing t
func DayWindow(t time.Time) (start, end time.Time) {
	start = StartOfDay(t)
	return start, start.Add(24 * time.Hour)
}

// SlotAt interprets hhmm ("09:00") as a local wall-clock time on the local
// calendar day containing t and returns the UTC instant
func SlotAt(t time.Time, hhmm string) (time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid time %q: expected HH:MM", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("invalid hour in %q", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid minute in %q", hhmm)
	}

	local := t.In(jst)
	slot := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, jst)
	return slot.UTC(), nil
}

// LocalSlot returns the UTC instant for hour:minute local time on the local
// calendar day containing t
func LocalSlot(t time.Time, hour, minute int) time.Time {
	local := t.In(jst)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, jst).UTC()
}

// UntilNextMidnight returns the time remaining until the next local midnight
func UntilNextMidnight(t time.Time) time.Duration {
	start := StartOfDay(t)
	next := start.Add(24 * time.Hour)
	return next.Sub(t)
}

// ResetCountdown splits the time until the next local midnight into whole
// hours and minutes, for user-facing quota-reset messages
func ResetCountdown(t time.Time) (hours, minutes int) {
	d := UntilNextMidnight(t)
	hours = int(d / time.Hour)
	minutes = int((d % time.Hour) / time.Minute)
	return hours, minutes
}
