// Package risk tracks realized-loss budgets over calendar windows and the
// circuit-breaker flags that halt trading when a budget or anomaly threshold
// is crossed. All window math is UTC so restarts in different timezones see
// the same boundaries.
package risk

import "time"

// DayStart returns midnight UTC of t's day.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekStart returns midnight UTC of the Monday of t's ISO week.
func WeekStart(t time.Time) time.Time {
	day := DayStart(t)
	weekday := int(day.Weekday())
	if weekday == 0 { // Sunday
		weekday = 7
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

// MonthStart returns midnight UTC of the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// HourAgo returns the rolling one-hour window start. Unlike the calendar
// windows this one slides.
func HourAgo(t time.Time) time.Time {
	return t.UTC().Add(-time.Hour)
}

// SnapshotStart returns the earliest instant any loss window reaches back to,
// so one closed-positions query covers all of them. The ISO week and the
// rolling hour can both begin before the month does.
func SnapshotStart(t time.Time) time.Time {
	start := MonthStart(t)
	if ws := WeekStart(t); ws.Before(start) {
		start = ws
	}
	if ha := HourAgo(t); ha.Before(start) {
		start = ha
	}
	return start
}
