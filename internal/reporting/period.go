package reporting

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidPeriod is returned for period names other than day, week, month and year.
	ErrInvalidPeriod = errors.New("period must be day, week, month or year")
	// ErrInvalidRange is returned when a drill-down range is inverted.
	ErrInvalidRange = errors.New("invalid range")
)

// Period is a calendar bucket used by the dashboard.
type Period string

const (
	Day   Period = "day"
	Week  Period = "week"
	Month Period = "month"
	Year  Period = "year"
)

// Periods lists the dashboard buckets in display order.
var Periods = []Period{Day, Week, Month, Year}

// ParsePeriod accepts a period name in any letter case.
func ParsePeriod(raw string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case Day, Week, Month, Year:
		return p, nil
	}
	return "", fmt.Errorf("%q: %w", raw, ErrInvalidPeriod)
}

// Range is an inclusive instant interval.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside r, bounds included.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// DateRange returns the calendar period containing anchor, evaluated in the
// anchor's location. The end is the last millisecond before the next period
// starts. Weeks run Monday through Sunday.
func DateRange(p Period, anchor time.Time) (Range, error) {
	loc := anchor.Location()
	y, m, d := anchor.Date()
	var start, next time.Time
	switch p {
	case Day:
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
		next = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	case Week:
		offset := (int(anchor.Weekday()) + 6) % 7
		start = time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
		next = time.Date(y, m, d-offset+7, 0, 0, 0, 0, loc)
	case Month:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		next = time.Date(y, m+1, 1, 0, 0, 0, 0, loc)
	case Year:
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		next = time.Date(y+1, time.January, 1, 0, 0, 0, 0, loc)
	default:
		return Range{}, fmt.Errorf("%q: %w", p, ErrInvalidPeriod)
	}
	return Range{Start: start, End: next.Add(-time.Millisecond)}, nil
}

// Previous returns an anchor inside the period immediately before the one
// containing anchor. Month steps never overflow into the current month.
func Previous(p Period, anchor time.Time) time.Time {
	loc := anchor.Location()
	y, m, d := anchor.Date()
	switch p {
	case Week:
		return time.Date(y, m, d-7, 12, 0, 0, 0, loc)
	case Month:
		return time.Date(y, m, 1, 12, 0, 0, 0, loc).AddDate(0, 0, -1)
	case Year:
		return time.Date(y-1, time.January, 1, 12, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d-1, 12, 0, 0, 0, loc)
	}
}

// Label returns the dashboard heading for a period.
func Label(p Period) string {
	switch p {
	case Day:
		return "Today's Sales"
	case Week:
		return "Weekly Revenue"
	case Month:
		return "Monthly Revenue"
	case Year:
		return "Yearly Revenue"
	}
	return string(p)
}
