package timeutil

import (
	"testing"
	"time"
)

func TestStartOfDay(t *testing.T) {
	// 2026-03-10 01:30 JST is still 2026-03-09 16:30 UTC.
	instant := time.Date(2026, 3, 9, 16, 30, 0, 0, time.UTC)

	start := StartOfDay(instant)

	want := time.Date(2026, 3, 9, 15, 0, 0, 0, time.UTC) // 2026-03-10 00:00 JST
	if !start.Equal(want) {
		t.Errorf("StartOfDay = %v, want %v", start, want)
	}
	if start.Location() != time.UTC {
		t.Errorf("StartOfDay returned non-UTC instant: %v", start.Location())
	}
}

func TestDayWindow(t *testing.T) {
	instant := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC) // noon JST

	start, end := DayWindow(instant)

	if got := end.Sub(start); got != 24*time.Hour {
		t.Errorf("window length = %v, want 24h", got)
	}
	if instant.Before(start) || !instant.Before(end) {
		t.Errorf("instant %v outside window [%v, %v)", instant, start, end)
	}
}

func TestSlotAt(t *testing.T) {
	day := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

	slot, err := SlotAt(day, "09:00")
	if err != nil {
		t.Fatalf("SlotAt: %v", err)
	}
	// 09:00 JST on 2026-03-10 is 00:00 UTC.
	want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if !slot.Equal(want) {
		t.Errorf("SlotAt = %v, want %v", slot, want)
	}
}

func TestSlotAtInvalid(t *testing.T) {
	day := time.Now()

	for _, entry := range []string{"", "9", "25:00", "09:60", "ab:cd", "09:00:00x"} {
		if _, err := SlotAt(day, entry); err == nil {
			t.Errorf("SlotAt(%q): expected error", entry)
		}
	}
}

func TestSlotAtTolerantSpacing(t *testing.T) {
	day := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

	slot, err := SlotAt(day, " 18:30 ")
	if err != nil {
		t.Fatalf("SlotAt: %v", err)
	}
	want := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	if !slot.Equal(want) {
		t.Errorf("SlotAt = %v, want %v", slot, want)
	}
}

func TestLocalSlot(t *testing.T) {
	day := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

	slot := LocalSlot(day, 21, 45)

	want := time.Date(2026, 3, 10, 12, 45, 0, 0, time.UTC)
	if !slot.Equal(want) {
		t.Errorf("LocalSlot = %v, want %v", slot, want)
	}
}

func TestResetCountdown(t *testing.T) {
	// 21:30 JST: 2h30m until midnight.
	instant := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)

	hours, minutes := ResetCountdown(instant)

	if hours != 2 || minutes != 30 {
		t.Errorf("ResetCountdown = %dh%dm, want 2h30m", hours, minutes)
	}
}

func TestResetCountdownJustAfterMidnight(t *testing.T) {
	// 00:01 JST: nearly a full day remaining.
	instant := time.Date(2026, 3, 9, 15, 1, 0, 0, time.UTC)

	hours, minutes := ResetCountdown(instant)

	if hours != 23 || minutes != 59 {
		t.Errorf("ResetCountdown = %dh%dm, want 23h59m", hours, minutes)
	}
}
