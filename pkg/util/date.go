package util

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-day layout used for persisted keys and reports.
const DateLayout = "2006-01-02"

const day = 24 * time.Hour

// ParseTime tries YYYY-MM-DD, DD/MM/YYYY, RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{DateLayout, "02/01/2006", time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// ParseDay parses s and normalizes it to UTC midnight.
func ParseDay(s string) (time.Time, bool) {
	t, ok := ParseTime(s)
	if !ok {
		return time.Time{}, false
	}
	return StartOfDay(t), true
}

// StartOfDay returns the UTC midnight of the calendar day t falls on in UTC.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDay formats t as YYYY-MM-DD in UTC.
func FormatDay(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// FormatDays formats every date with FormatDay.
func FormatDays(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = FormatDay(t)
	}
	return out
}

// AddDays moves t by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return StartOfDay(t).AddDate(0, 0, n)
}

// DaysBetween returns the number of calendar days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	return int(StartOfDay(b).Sub(StartOfDay(a)) / day)
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return StartOfDay(a).Equal(StartOfDay(b))
}

// DayRange returns every UTC day in [from, to], inclusive. Empty when from is after to.
func DayRange(from, to time.Time) []time.Time {
	from, to = StartOfDay(from), StartOfDay(to)
	if from.After(to) {
		return nil
	}
	out := make([]time.Time, 0, DaysBetween(from, to)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// DayKey is a comparable representation of a calendar day, usable as a map key.
func DayKey(t time.Time) int64 {
	return StartOfDay(t).Unix() / int64(day/time.Second)
}

// FromDayKey is the inverse of DayKey.
func FromDayKey(k int64) time.Time {
	return time.Unix(k*int64(day/time.Second), 0).UTC()
}
