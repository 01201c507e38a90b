// Package output provides styled terminal output helpers (success, error,
// warning, entity formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/harper/dispatch/internal/models"
)

var (
	// Styles
	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	priorityStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	taskStyles    = map[models.TaskStatus]lipgloss.Style{
		models.TaskOpen:       lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.TaskInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.TaskDone:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.TaskCancelled:  lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
	listingStyles = map[models.ListingStatus]lipgloss.Style{
		models.ListingDraft:     lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		models.ListingActive:    lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.ListingPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.ListingSold:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.ListingWithdrawn: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// OutputMode determines output format
type OutputMode int

const (
	ModeShort OutputMode = iota
	ModeLong
	ModeJSON
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound        = "not_found"
	ErrCodeInvalidInput    = "invalid_input"
	ErrCodeConflict        = "conflict"
	ErrCodeDatabaseError   = "database_error"
	ErrCodeNotAuthed       = "not_authenticated"
	ErrCodeNotLinked       = "not_linked"
	ErrCodeSyncFailed      = "sync_failed"
	ErrCodeNoActiveSession = "no_active_session"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	fmt.Printf(`{"error":{"code":"%s","message":"%s"}}`, code, message)
	fmt.Println()
}

// JSONErrorWithDetails outputs an error as JSON with additional context
func JSONErrorWithDetails(code, message string, details map[string]interface{}) {
	errObj := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if len(details) > 0 {
		errObj["details"] = details
	}
	result := map[string]interface{}{
		"error": errObj,
	}
	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// FormatTaskStatus formats a task status with color
func FormatTaskStatus(s models.TaskStatus) string {
	style, ok := taskStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatListingStatus formats a listing status with color
func FormatListingStatus(s models.ListingStatus) string {
	style, ok := listingStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatPriority formats a priority
func FormatPriority(p models.Priority) string {
	return priorityStyle.Render(fmt.Sprintf("[%s]", p))
}

// FormatPrice renders a price in whole dollars with thousands separators,
// or empty string when unset.
func FormatPrice(cents int64) string {
	if cents == 0 {
		return ""
	}
	dollars := cents / 100
	s := fmt.Sprintf("%d", dollars)
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 && c != '-' {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return "$" + string(out)
}

// FormatTaskShort formats a task in short list format
func FormatTaskShort(task *models.Task) string {
	var parts []string
	parts = append(parts, titleStyle.Render(task.ID))
	parts = append(parts, FormatPriority(task.Priority))
	parts = append(parts, task.Title)

	if task.AssigneeID != "" {
		parts = append(parts, subtleStyle.Render("@"+task.AssigneeID))
	}
	if task.DueAt != nil {
		parts = append(parts, subtleStyle.Render("due "+task.DueAt.Format("Jan 2")))
	}

	parts = append(parts, FormatTaskStatus(task.Status))

	return strings.Join(parts, "  ")
}

// FormatListingShort formats a listing in short list format
func FormatListingShort(l *models.Listing) string {
	var parts []string
	parts = append(parts, titleStyle.Render(l.ID))
	parts = append(parts, subtleStyle.Render(l.PropertyID))
	if price := FormatPrice(l.ListPrice); price != "" {
		parts = append(parts, price)
	}
	if l.MLSNumber != "" {
		parts = append(parts, subtleStyle.Render("MLS "+l.MLSNumber))
	}
	parts = append(parts, FormatListingStatus(l.Status))

	return strings.Join(parts, "  ")
}

// FormatShowingShort formats a showing in short list format
func FormatShowingShort(s *models.Showing) string {
	var parts []string
	parts = append(parts, titleStyle.Render(s.ID))
	parts = append(parts, s.ScheduledAt.Format("Jan 2 15:04"))
	parts = append(parts, subtleStyle.Render(s.ListingID))
	if s.ContactID != "" {
		parts = append(parts, subtleStyle.Render("with "+s.ContactID))
	}
	parts = append(parts, fmt.Sprintf("[%s]", s.Status))
	return strings.Join(parts, "  ")
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// TaskOneLiner returns a concise single-line task representation
func TaskOneLiner(task *models.Task) string {
	return fmt.Sprintf("%s \"%s\" %s", task.ID, task.Title, FormatTaskStatus(task.Status))
}

// StatusBadge returns a task status indicator with symbol
// e.g., "○ open", "▶ in_progress", "✓ done", "✗ cancelled"
func StatusBadge(status models.TaskStatus) string {
	symbols := map[models.TaskStatus]string{
		models.TaskOpen:       "○",
		models.TaskInProgress: "▶",
		models.TaskDone:       "✓",
		models.TaskCancelled:  "✗",
	}
	symbol, ok := symbols[status]
	if !ok {
		symbol = "?"
	}
	style, hasStyle := taskStyles[status]
	if hasStyle {
		return style.Render(fmt.Sprintf("%s %s", symbol, status))
	}
	return fmt.Sprintf("%s %s", symbol, status)
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nSHOWINGS:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentLines indents each line by the specified number of spaces
func IndentLines(lines []string, spaces int) []string {
	indent := strings.Repeat(" ", spaces)
	result := make([]string, len(lines))
	for i, line := range lines {
		result[i] = indent + line
	}
	return result
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	indented := IndentLines(lines, spaces)
	return strings.Join(indented, "\n")
}

// BulletList formats items as a bulleted list with optional indentation
func BulletList(items []string, indent int) []string {
	prefix := strings.Repeat(" ", indent)
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = prefix + "- " + item
	}
	return result
}
