package dto

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iho/saleledger/internal/domain"
)

// DateLayout is the calendar-day format accepted by report queries.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", domain.ErrInvalidReportPeriod, s)
	}

	return t, nil
}

// ParseBound accepts RFC 3339 instants or YYYY-MM-DD days, the latter
// meaning midnight in loc. An empty string is an open bound.
func ParseBound(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}

	return ParseDate(s, loc)
}

// ParseTimeRange reads the from and to query parameters into a validated range.
func ParseTimeRange(q url.Values, loc *time.Location) (domain.TimeRange, error) {
	from, err := ParseBound(q.Get("from"), loc)
	if err != nil {
		return domain.TimeRange{}, err
	}

	to, err := ParseBound(q.Get("to"), loc)
	if err != nil {
		return domain.TimeRange{}, err
	}

	r := domain.TimeRange{From: from, To: to}
	if err := r.Validate(); err != nil {
		return domain.TimeRange{}, err
	}

	return r, nil
}

// ParseYearMonth reads the year and month query parameters.
func ParseYearMonth(q url.Values) (int, time.Month, error) {
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: year %q", domain.ErrInvalidReportPeriod, q.Get("year"))
	}

	month, err := strconv.Atoi(q.Get("month"))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: month %q", domain.ErrInvalidReportPeriod, q.Get("month"))
	}

	return year, time.Month(month), nil
}
