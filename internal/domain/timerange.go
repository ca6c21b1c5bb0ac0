package domain

import (
	"fmt"
	"time"
)

// TimeRange is the half-open interval [From, To). A zero bound is unbounded.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// AllTime is the unbounded range.
func AllTime() TimeRange {
	return TimeRange{}
}

// DayRange covers the calendar day of date in loc.
func DayRange(date time.Time, loc *time.Location) TimeRange {
	y, m, d := date.In(loc).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)

	return TimeRange{From: from, To: from.AddDate(0, 0, 1)}
}

// MonthRange covers the calendar month in loc.
func MonthRange(year int, month time.Month, loc *time.Location) (TimeRange, error) {
	if month < time.January || month > time.December {
		return TimeRange{}, fmt.Errorf("%w: month %d", ErrInvalidReportPeriod, month)
	}

	if year < 1 || year > 9999 {
		return TimeRange{}, fmt.Errorf("%w: year %d", ErrInvalidReportPeriod, year)
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)

	return TimeRange{From: from, To: from.AddDate(0, 1, 0)}, nil
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}

	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}

	return true
}

// Validate rejects ranges whose end precedes their start.
func (r TimeRange) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return fmt.Errorf("%w: range ends before it starts", ErrInvalidReportPeriod)
	}

	return nil
}

// ClosedBefore reports whether the range has a finite end at or before t.
func (r TimeRange) ClosedBefore(t time.Time) bool {
	return !r.To.IsZero() && !r.To.After(t)
}
