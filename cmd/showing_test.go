package cmd

import (
	"testing"
	"time"
)

func TestParseShowingTime(t *testing.T) {
	got, err := parseShowingTime("2026-03-14 15:30")
	if err != nil {
		t.Fatalf("parseShowingTime failed: %v", err)
	}
	want := time.Date(2026, 3, 14, 15, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseShowingTimeRFC3339(t *testing.T) {
	got, err := parseShowingTime("2026-03-14T15:30:00Z")
	if err != nil {
		t.Fatalf("parseShowingTime failed: %v", err)
	}
	if got.UTC().Hour() != 15 || got.UTC().Minute() != 30 {
		t.Errorf("unexpected time: %v", got)
	}
}

func TestParseShowingTimeRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "tomorrow", "03/14/2026", "2026-03-14"} {
		if _, err := parseShowingTime(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}
