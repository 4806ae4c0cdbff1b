package utils

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the civil-date layout used by stores and wire payloads.
const DateLayout = "2006-01-02"

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// ParseDate parses a YYYY-MM-DD civil date into midnight UTC.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date value")
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date: %w", err)
	}
	return t, nil
}

// DateOnly strips the clock from t, keeping its calendar day, and returns midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateIn returns the calendar day of t as observed in loc.
func DateIn(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DateOnly(t.In(loc))
}

// AddDays shifts a civil date by n days.
func AddDays(date time.Time, n int) time.Time {
	return DateOnly(date).AddDate(0, 0, n)
}

// DaysBetween returns the whole number of days from start to end (negative when end precedes start).
func DaysBetween(start, end time.Time) int {
	hours := DateOnly(end).Sub(DateOnly(start)).Hours()
	return int(math.Round(hours / 24))
}

// FormatDate renders a civil date, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
