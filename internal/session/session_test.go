package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetOrCreateReusesSessionWhenContextStable(t *testing.T) {
	baseDir := t.TempDir()
	t.Setenv("DISPATCH_SESSION_ID", "ctx-1")

	s1, err := GetOrCreate(baseDir)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if s1.ID == "" {
		t.Fatalf("expected session ID")
	}
	if !s1.IsNew {
		t.Fatalf("expected IsNew=true on first create")
	}

	s2, err := GetOrCreate(baseDir)
	if err != nil {
		t.Fatalf("GetOrCreate (second): %v", err)
	}
	if s2.IsNew {
		t.Fatalf("expected IsNew=false when reusing existing session")
	}
	if s1.ID != s2.ID {
		t.Fatalf("expected same session ID, got %q vs %q", s1.ID, s2.ID)
	}
}

func TestGetOrCreateRotatesWhenContextChanges(t *testing.T) {
	baseDir := t.TempDir()

	t.Setenv("DISPATCH_SESSION_ID", "term-1")
	s1, err := GetOrCreate(baseDir)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	t.Setenv("DISPATCH_SESSION_ID", "term-2")
	s2, err := GetOrCreate(baseDir)
	if err != nil {
		t.Fatalf("GetOrCreate (different context): %v", err)
	}

	if s1.ID == s2.ID {
		t.Fatalf("expected different session IDs for different contexts, both got %q", s1.ID)
	}
	if !s2.IsNew {
		t.Fatalf("expected IsNew=true for rotated session")
	}
	if s2.PreviousSessionID != s1.ID {
		t.Fatalf("expected previous session %q, got %q", s1.ID, s2.PreviousSessionID)
	}
}

func TestForceNewSessionAlwaysCreatesNew(t *testing.T) {
	baseDir := t.TempDir()
	t.Setenv("DISPATCH_SESSION_ID", "ctx-1")

	s1, err := GetOrCreate(baseDir)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	s2, err := ForceNewSession(baseDir)
	if err != nil {
		t.Fatalf("ForceNewSession: %v", err)
	}

	if s1.ID == s2.ID {
		t.Fatalf("expected new session ID, got same %q", s1.ID)
	}
	if s2.PreviousSessionID != s1.ID {
		t.Fatalf("expected previous session %q, got %q", s1.ID, s2.PreviousSessionID)
	}
}

func TestGetRequiresExistingSession(t *testing.T) {
	baseDir := t.TempDir()

	if _, err := Get(baseDir); err == nil {
		t.Fatalf("expected error when no session file exists")
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	baseDir := t.TempDir()

	sess := &Session{
		ID:        "ses_abc123",
		Name:      "open-house-prep",
		ContextID: "explicit:ctx",
		StartedAt: time.Now().Truncate(time.Second),
	}
	if err := os.MkdirAll(filepath.Join(baseDir, ".dispatch"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := Save(baseDir, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Get(baseDir)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("ID = %q, want %q", got.ID, sess.ID)
	}
	if got.Name != sess.Name {
		t.Errorf("Name = %q, want %q", got.Name, sess.Name)
	}
}

func TestSetName(t *testing.T) {
	baseDir := t.TempDir()
	t.Setenv("DISPATCH_SESSION_ID", "ctx-1")

	sess, err := SetName(baseDir, "closing-week")
	if err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if sess.Name != "closing-week" {
		t.Fatalf("Name = %q, want closing-week", sess.Name)
	}

	got, err := Get(baseDir)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "closing-week" {
		t.Fatalf("persisted Name = %q, want closing-week", got.Name)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{"30m", 30 * time.Minute, false},
		{"1h30m", 90 * time.Minute, false},
		{"2d", 48 * time.Hour, false},
		{"nope", 0, true},
	}

	for _, tc := range tests {
		got, err := ParseDuration(tc.in)
		if tc.err {
			if err == nil {
				t.Errorf("ParseDuration(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDuration(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
