// Package dateparse turns due-date shorthand into ISO 8601 dates. Agents
// type "+3d" or "friday" far more often than a full date, so every form
// resolves against a reference day.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseDate resolves input against the current time. See ParseDateFrom for
// the accepted forms.
func ParseDate(input string) (string, error) {
	return ParseDateFrom(input, time.Now())
}

// ParseDateFrom resolves a date shorthand against a fixed reference day and
// returns YYYY-MM-DD.
//
// Accepted forms:
//
//	2026-03-01        exact date
//	+3d, +2w, +1m     offsets in days, weeks, or months
//	friday            next occurrence of that weekday, never today
//	today, tomorrow
//	next-week         the coming Monday
//	next-month        the 1st of the following month
func ParseDateFrom(input string, now time.Time) (string, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return "", fmt.Errorf("empty date input")
	}

	if t, err := time.Parse("2006-01-02", input); err == nil {
		return iso(t), nil
	}

	switch input {
	case "today":
		return iso(now), nil
	case "tomorrow":
		return iso(now.AddDate(0, 0, 1)), nil
	case "next-week":
		return iso(weekdayAfter(now, time.Monday)), nil
	case "next-month":
		year, month, _ := now.Date()
		return iso(time.Date(year, month+1, 1, 0, 0, 0, 0, now.Location())), nil
	}

	if strings.HasPrefix(input, "+") && len(input) >= 3 {
		unit := input[len(input)-1]
		n, err := strconv.Atoi(input[1 : len(input)-1])
		if err == nil && n >= 0 {
			switch unit {
			case 'd':
				return iso(now.AddDate(0, 0, n)), nil
			case 'w':
				return iso(now.AddDate(0, 0, n*7)), nil
			case 'm':
				return iso(now.AddDate(0, n, 0)), nil
			default:
				return "", fmt.Errorf("unknown relative unit %q in %q (use d, w, or m)", string(unit), input)
			}
		}
	}

	if target, ok := weekdays[input]; ok {
		return iso(weekdayAfter(now, target)), nil
	}

	return "", fmt.Errorf("unrecognized date format: %q", input)
}

// weekdayAfter returns the next occurrence of target strictly after now, so
// "friday" on a Friday means a week out.
func weekdayAfter(now time.Time, target time.Weekday) time.Time {
	ahead := (int(target) - int(now.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return now.AddDate(0, 0, ahead)
}

func iso(t time.Time) string {
	return t.Format("2006-01-02")
}
