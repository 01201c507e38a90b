package dateparse

import (
	"testing"
	"time"
)

// refDay is a Wednesday, so every weekday shorthand lands on a distinct
// offset from it.
var refDay = time.Date(2026, 8, 19, 12, 0, 0, 0, time.UTC)

func TestParseDateFrom(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		// exact dates pass through
		{"2026-03-01", "2026-03-01"},
		{"2025-12-31", "2025-12-31"},

		// day offsets
		{"+0d", "2026-08-19"},
		{"+1d", "2026-08-20"},
		{"+7d", "2026-08-26"},
		{"+14d", "2026-09-02"},

		// week and month offsets
		{"+0w", "2026-08-19"},
		{"+1w", "2026-08-26"},
		{"+2w", "2026-09-02"},
		{"+0m", "2026-08-19"},
		{"+1m", "2026-09-19"},
		{"+2m", "2026-10-19"},

		// keywords
		{"today", "2026-08-19"},
		{"tomorrow", "2026-08-20"},
		{"next-week", "2026-08-24"},
		{"next-month", "2026-09-01"},

		// weekday names resolve to the next occurrence, never today
		{"thursday", "2026-08-20"},
		{"friday", "2026-08-21"},
		{"saturday", "2026-08-22"},
		{"sunday", "2026-08-23"},
		{"monday", "2026-08-24"},
		{"tuesday", "2026-08-25"},
		{"wednesday", "2026-08-26"},

		// case and whitespace are forgiven
		{"FRIDAY", "2026-08-21"},
		{"  tomorrow  ", "2026-08-20"},
	}
	for _, tt := range tests {
		got, err := ParseDateFrom(tt.input, refDay)
		if err != nil {
			t.Errorf("ParseDateFrom(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDateFrom(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseDateFrom_MonthOffsetNormalizes(t *testing.T) {
	// Aug 31 + 1 month has no Sep 31; AddDate rolls it into October.
	aug31 := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	got, err := ParseDateFrom("+1m", aug31)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2026-10-01" {
		t.Errorf("Aug 31 + 1m = %q, want 2026-10-01", got)
	}
}

func TestParseDateFrom_NextWeekOnMonday(t *testing.T) {
	// "next-week" on a Monday means the Monday after, not today.
	monday := time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC)
	got, err := ParseDateFrom("next-week", monday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2026-08-24" {
		t.Errorf("next-week on Monday = %q, want 2026-08-24", got)
	}
}

func TestParseDateFrom_NextMonthCrossesYear(t *testing.T) {
	dec := time.Date(2025, 12, 15, 12, 0, 0, 0, time.UTC)
	got, err := ParseDateFrom("next-month", dec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2026-01-01" {
		t.Errorf("next-month from December = %q, want 2026-01-01", got)
	}
}

func TestParseDateFrom_Rejections(t *testing.T) {
	for _, input := range []string{
		"",
		"yesterday",
		"next year",
		"+3x",
		"-2d",
		"notaday",
		"2026/03/01",
		"+d",
		"+w",
	} {
		if _, err := ParseDateFrom(input, refDay); err == nil {
			t.Errorf("ParseDateFrom(%q): expected error, got nil", input)
		}
	}
}

func TestParseDate_UsesCurrentTime(t *testing.T) {
	got, err := ParseDate("today")
	if err != nil {
		t.Fatalf("ParseDate: unexpected error: %v", err)
	}
	if want := time.Now().Format("2006-01-02"); got != want {
		t.Errorf("ParseDate(today) = %q, want %q", got, want)
	}
}
