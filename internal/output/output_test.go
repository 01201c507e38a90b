package output

import (
	"strings"
	"testing"
	"time"

	"github.com/harper/dispatch/internal/models"
)

// TestFormatTimeAgoJustNow tests times less than a minute ago
func TestFormatTimeAgoJustNow(t *testing.T) {
	now := time.Now()
	tests := []time.Time{
		now,
		now.Add(-30 * time.Second),
		now.Add(-59 * time.Second),
	}

	for _, tm := range tests {
		result := FormatTimeAgo(tm)
		if result != "just now" {
			t.Errorf("FormatTimeAgo(%v) = %q, want 'just now'", tm, result)
		}
	}
}

// TestFormatTimeAgoMinutes tests times 1-59 minutes ago
func TestFormatTimeAgoMinutes(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Minute, "1m ago"},
		{2 * time.Minute, "2m ago"},
		{30 * time.Minute, "30m ago"},
		{59 * time.Minute, "59m ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

// TestFormatTimeAgoHours tests times 1-23 hours ago
func TestFormatTimeAgoHours(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Hour, "1h ago"},
		{2 * time.Hour, "2h ago"},
		{12 * time.Hour, "12h ago"},
		{23 * time.Hour, "23h ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

// TestFormatTimeAgoDays tests times 1-6 days ago
func TestFormatTimeAgoDays(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{24 * time.Hour, "1d ago"},
		{48 * time.Hour, "2d ago"},
		{6 * 24 * time.Hour, "6d ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

// TestFormatTimeAgoDate tests times 7+ days ago (returns date)
func TestFormatTimeAgoDate(t *testing.T) {
	tm := time.Now().Add(-8 * 24 * time.Hour)
	result := FormatTimeAgo(tm)
	expected := tm.Format("2006-01-02")
	if result != expected {
		t.Errorf("FormatTimeAgo(-8d) = %q, want %q", result, expected)
	}
}

// TestFormatTaskStatus tests all task status values
func TestFormatTaskStatus(t *testing.T) {
	statuses := []models.TaskStatus{
		models.TaskOpen,
		models.TaskInProgress,
		models.TaskDone,
		models.TaskCancelled,
	}

	for _, s := range statuses {
		result := FormatTaskStatus(s)
		if !strings.Contains(result, string(s)) {
			t.Errorf("FormatTaskStatus(%q) = %q, should contain status", s, result)
		}
	}
}

// TestFormatTaskStatusUnknown tests unknown status
func TestFormatTaskStatusUnknown(t *testing.T) {
	unknown := models.TaskStatus("unknown")
	result := FormatTaskStatus(unknown)
	if result != "unknown" {
		t.Errorf("FormatTaskStatus(unknown) = %q, want 'unknown'", result)
	}
}

// TestFormatListingStatus tests listing status rendering
func TestFormatListingStatus(t *testing.T) {
	statuses := []models.ListingStatus{
		models.ListingDraft,
		models.ListingActive,
		models.ListingPending,
		models.ListingSold,
		models.ListingWithdrawn,
	}

	for _, s := range statuses {
		result := FormatListingStatus(s)
		if !strings.Contains(result, string(s)) {
			t.Errorf("FormatListingStatus(%q) should contain status", s)
		}
	}
}

// TestFormatPriority tests priority formatting
func TestFormatPriority(t *testing.T) {
	priorities := []models.Priority{
		models.PriorityP0,
		models.PriorityP1,
		models.PriorityP2,
		models.PriorityP3,
	}

	for _, p := range priorities {
		result := FormatPriority(p)
		if !strings.Contains(result, string(p)) {
			t.Errorf("FormatPriority(%q) should contain priority", p)
		}
	}
}

// TestFormatPrice tests price rendering from cents
func TestFormatPrice(t *testing.T) {
	tests := []struct {
		cents    int64
		expected string
	}{
		{0, ""},
		{50000, "$500"},
		{45000000, "$450,000"},
		{129500000, "$1,295,000"},
	}

	for _, tc := range tests {
		result := FormatPrice(tc.cents)
		if result != tc.expected {
			t.Errorf("FormatPrice(%d) = %q, want %q", tc.cents, result, tc.expected)
		}
	}
}

// TestFormatTaskShort tests short task formatting
func TestFormatTaskShort(t *testing.T) {
	due := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	task := &models.Task{
		ID:         "tk-abc123",
		Title:      "Order staging photos",
		Status:     models.TaskOpen,
		Priority:   models.PriorityP1,
		AssigneeID: "us-1",
		DueAt:      &due,
	}

	result := FormatTaskShort(task)

	if !strings.Contains(result, "tk-abc123") {
		t.Error("FormatTaskShort should contain task ID")
	}
	if !strings.Contains(result, "Order staging photos") {
		t.Error("FormatTaskShort should contain title")
	}
	if !strings.Contains(result, "@us-1") {
		t.Error("FormatTaskShort should contain assignee")
	}
	if !strings.Contains(result, "due Mar 14") {
		t.Error("FormatTaskShort should contain due date")
	}
}

// TestFormatTaskShortNoOptional tests short format without optional fields
func TestFormatTaskShortNoOptional(t *testing.T) {
	task := &models.Task{
		ID:       "tk-def456",
		Title:    "Bare task",
		Status:   models.TaskDone,
		Priority: models.PriorityP2,
	}

	result := FormatTaskShort(task)

	if !strings.Contains(result, "tk-def456") {
		t.Error("Should contain task ID")
	}
	if strings.Contains(result, "@") {
		t.Error("Should not contain assignee marker when unassigned")
	}
	if strings.Contains(result, "due") {
		t.Error("Should not contain due date when unset")
	}
}

// TestFormatListingShort tests short listing formatting
func TestFormatListingShort(t *testing.T) {
	listing := &models.Listing{
		ID:         "ls-abc1",
		PropertyID: "pr-xyz9",
		Status:     models.ListingActive,
		ListPrice:  45000000,
		MLSNumber:  "MLS-20411",
	}

	result := FormatListingShort(listing)

	if !strings.Contains(result, "ls-abc1") {
		t.Error("Should contain listing ID")
	}
	if !strings.Contains(result, "pr-xyz9") {
		t.Error("Should contain property ID")
	}
	if !strings.Contains(result, "$450,000") {
		t.Error("Should contain formatted price")
	}
	if !strings.Contains(result, "MLS-20411") {
		t.Error("Should contain MLS number")
	}
}

// TestFormatShowingShort tests short showing formatting
func TestFormatShowingShort(t *testing.T) {
	showing := &models.Showing{
		ID:          "sh-1",
		ListingID:   "ls-1",
		ContactID:   "ct-1",
		ScheduledAt: time.Date(2026, 5, 2, 14, 30, 0, 0, time.UTC),
		Status:      models.ShowingScheduled,
	}

	result := FormatShowingShort(showing)

	if !strings.Contains(result, "sh-1") {
		t.Error("Should contain showing ID")
	}
	if !strings.Contains(result, "May 2 14:30") {
		t.Error("Should contain scheduled time")
	}
	if !strings.Contains(result, "with ct-1") {
		t.Error("Should contain contact")
	}
}

// TestTaskOneLiner tests concise one-line task formatting
func TestTaskOneLiner(t *testing.T) {
	task := &models.Task{
		ID:     "tk-abc1",
		Title:  "Confirm inspection date",
		Status: models.TaskInProgress,
	}

	result := TaskOneLiner(task)

	if !strings.Contains(result, "tk-abc1") {
		t.Error("Should contain task ID")
	}
	if !strings.Contains(result, "Confirm inspection date") {
		t.Error("Should contain title")
	}
	if !strings.Contains(result, "in_progress") {
		t.Error("Should contain status")
	}
}

// TestStatusBadge tests status badge with symbols
func TestStatusBadge(t *testing.T) {
	tests := []struct {
		status   models.TaskStatus
		contains string
	}{
		{models.TaskOpen, "○"},
		{models.TaskInProgress, "▶"},
		{models.TaskDone, "✓"},
		{models.TaskCancelled, "✗"},
	}

	for _, tc := range tests {
		result := StatusBadge(tc.status)
		if !strings.Contains(result, tc.contains) {
			t.Errorf("StatusBadge(%q) = %q, should contain %q", tc.status, result, tc.contains)
		}
		if !strings.Contains(result, string(tc.status)) {
			t.Errorf("StatusBadge(%q) should contain status name", tc.status)
		}
	}
}

// TestStatusBadgeUnknown tests badge for unknown status
func TestStatusBadgeUnknown(t *testing.T) {
	result := StatusBadge(models.TaskStatus("unknown"))
	if !strings.Contains(result, "?") {
		t.Error("Unknown status should use ? symbol")
	}
}

// TestSectionHeader tests section header formatting
func TestSectionHeader(t *testing.T) {
	tests := []struct {
		title    string
		expected string
	}{
		{"showings", "\nSHOWINGS:\n"},
		{"Status History", "\nSTATUS HISTORY:\n"},
		{"NOTES", "\nNOTES:\n"},
	}

	for _, tc := range tests {
		result := SectionHeader(tc.title)
		if result != tc.expected {
			t.Errorf("SectionHeader(%q) = %q, want %q", tc.title, result, tc.expected)
		}
	}
}

// TestIndentLines tests line indentation
func TestIndentLines(t *testing.T) {
	lines := []string{"line1", "line2", "line3"}

	result := IndentLines(lines, 2)

	expected := []string{"  line1", "  line2", "  line3"}
	for i, line := range result {
		if line != expected[i] {
			t.Errorf("IndentLines[%d] = %q, want %q", i, line, expected[i])
		}
	}
}

// TestIndentString tests string indentation
func TestIndentString(t *testing.T) {
	input := "line1\nline2\nline3"
	result := IndentString(input, 2)
	expected := "  line1\n  line2\n  line3"

	if result != expected {
		t.Errorf("IndentString() = %q, want %q", result, expected)
	}
}

// TestIndentStringEmpty tests empty string
func TestIndentStringEmpty(t *testing.T) {
	result := IndentString("", 4)
	if result != "" {
		t.Error("Empty string should return empty string")
	}
}

// TestBulletList tests bullet list formatting
func TestBulletList(t *testing.T) {
	items := []string{"item 1", "item 2", "item 3"}
	result := BulletList(items, 2)

	expected := []string{"  - item 1", "  - item 2", "  - item 3"}
	for i, line := range result {
		if line != expected[i] {
			t.Errorf("BulletList[%d] = %q, want %q", i, line, expected[i])
		}
	}
}

// TestOutputModeConstants tests output mode constants
func TestOutputModeConstants(t *testing.T) {
	if ModeShort != 0 {
		t.Error("ModeShort should be 0")
	}
	if ModeLong != 1 {
		t.Error("ModeLong should be 1")
	}
	if ModeJSON != 2 {
		t.Error("ModeJSON should be 2")
	}
}
