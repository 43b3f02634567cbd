package timegrid

import (
	"testing"
	"time"
)

func TestSnap(t *testing.T) {
	loc := time.Local
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2026, 8, 17, 8, 0, 0, 0, loc), time.Date(2026, 8, 17, 8, 0, 0, 0, loc)},
		{time.Date(2026, 8, 17, 8, 14, 59, 123, loc), time.Date(2026, 8, 17, 8, 0, 0, 0, loc)},
		{time.Date(2026, 8, 17, 8, 30, 0, 0, loc), time.Date(2026, 8, 17, 8, 30, 0, 0, loc)},
		{time.Date(2026, 8, 17, 8, 59, 59, 0, loc), time.Date(2026, 8, 17, 8, 30, 0, 0, loc)},
		{time.Date(2026, 8, 17, 23, 59, 0, 0, loc), time.Date(2026, 8, 17, 23, 30, 0, 0, loc)},
	}
	for _, c := range cases {
		got := Snap(c.in)
		if !got.Equal(c.want) {
			t.Errorf("Snap(%v) = %v, want %v", c.in, got, c.want)
		}
		// 幂等
		if again := Snap(got); !again.Equal(got) {
			t.Errorf("Snap not idempotent: %v -> %v", got, again)
		}
	}
}

func TestColumnIndex(t *testing.T) {
	loc := time.Local
	cases := []struct {
		in   time.Time
		want int
	}{
		{time.Date(2026, 8, 17, 0, 0, 0, 0, loc), 0},     // Monday 00:00
		{time.Date(2026, 8, 17, 0, 30, 0, 0, loc), 1},    // Monday 00:30
		{time.Date(2026, 8, 17, 8, 0, 0, 0, loc), 16},    // Monday 08:00
		{time.Date(2026, 8, 18, 0, 0, 0, 0, loc), 48},    // Tuesday 00:00
		{time.Date(2026, 8, 23, 23, 30, 0, 0, loc), 335}, // Sunday 23:30
	}
	for _, c := range cases {
		if got := ColumnIndex(c.in); got != c.want {
			t.Errorf("ColumnIndex(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestFormatYearWeek(t *testing.T) {
	cases := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2026, 8, 17, 12, 0, 0, 0, time.Local), "2026-34"},
		// 2026-01-01 is a Thursday, ISO week 1
		{time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local), "2026-01"},
		// 2027-01-01 is a Friday, still week 53 of 2026
		{time.Date(2027, 1, 1, 0, 0, 0, 0, time.Local), "2026-53"},
		// 2024-12-30 is a Monday, ISO week 1 of 2025
		{time.Date(2024, 12, 30, 0, 0, 0, 0, time.Local), "2025-01"},
	}
	for _, c := range cases {
		if got := FormatYearWeek(c.in); got != c.want {
			t.Errorf("FormatYearWeek(%v) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestWeekStartRoundTrip(t *testing.T) {
	cases := []string{"2026-01", "2026-34", "2026-53", "2025-01", "2024-09"}
	for _, yw := range cases {
		start, err := WeekStart(yw)
		if err != nil {
			t.Fatalf("WeekStart(%s): %v", yw, err)
		}
		if start.Weekday() != time.Monday {
			t.Errorf("WeekStart(%s) = %v, not a Monday", yw, start)
		}
		if got := FormatYearWeek(start); got != yw {
			t.Errorf("FormatYearWeek(WeekStart(%s)) = %s", yw, got)
		}
	}
}

func TestWeekStartInvalid(t *testing.T) {
	for _, yw := range []string{"", "2026", "2026-0", "2026-54", "abcd-12", "2026-xx"} {
		if _, err := WeekStart(yw); err == nil {
			t.Errorf("WeekStart(%q) expected error", yw)
		}
	}
}

func TestPriorNextWeek(t *testing.T) {
	next, err := NextWeek("2026-53")
	if err != nil {
		t.Fatalf("NextWeek: %v", err)
	}
	if next != "2027-01" {
		t.Errorf("NextWeek(2026-53) = %s, want 2027-01", next)
	}
	prior, err := PriorWeek("2027-01")
	if err != nil {
		t.Fatalf("PriorWeek: %v", err)
	}
	if prior != "2026-53" {
		t.Errorf("PriorWeek(2027-01) = %s, want 2026-53", prior)
	}
}

func TestTense(t *testing.T) {
	now := time.Date(2026, 8, 19, 12, 0, 0, 0, time.Local) // Wednesday of 2026-34
	cases := []struct {
		yw   string
		want string
	}{
		{"2026-33", TensePast},
		{"2026-34", TenseCurrent},
		{"2026-35", TenseFuture},
	}
	for _, c := range cases {
		got, err := Tense(c.yw, now)
		if err != nil {
			t.Fatalf("Tense(%s): %v", c.yw, err)
		}
		if got != c.want {
			t.Errorf("Tense(%s) = %s, want %s", c.yw, got, c.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("06:30")
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	if h != 6 || m != 30 {
		t.Errorf("ParseClock(06:30) = %d:%d", h, m)
	}
	if _, _, err := ParseClock("25:00"); err == nil {
		t.Error("ParseClock(25:00) expected error")
	}
}
