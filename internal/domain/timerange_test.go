package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTimeRangeContains(t *testing.T) {
	t.Parallel()

	day := DayRange(time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC), time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"start is inclusive", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"last nanosecond", time.Date(2025, 3, 1, 23, 59, 59, 999999999, time.UTC), true},
		{"end is exclusive", time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), false},
		{"before start", time.Date(2025, 2, 28, 23, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := day.Contains(tt.at); got != tt.want {
				t.Fatalf("Contains(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}

	if !AllTime().Contains(time.Time{}) {
		t.Fatalf("expected unbounded range to contain everything")
	}
}

func TestDayRangeUsesLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC-3", -3*60*60)
	r := DayRange(time.Date(2025, 3, 2, 1, 0, 0, 0, time.UTC), loc)

	// 01:00 UTC on the 2nd is 22:00 on the 1st at UTC-3.
	if r.From.Day() != 1 || !r.From.Equal(time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected day start %s", r.From)
	}
}

func TestMonthRange(t *testing.T) {
	t.Parallel()

	r, err := MonthRange(2024, time.February, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !r.To.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected month end %s", r.To)
	}

	if _, err := MonthRange(2024, 13, time.UTC); !errors.Is(err, ErrInvalidReportPeriod) {
		t.Fatalf("expected ErrInvalidReportPeriod, got %v", err)
	}
}

func TestTimeRangeClosedBefore(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	if !DayRange(now.AddDate(0, 0, -1), time.UTC).ClosedBefore(now) {
		t.Fatalf("expected yesterday to be closed")
	}

	if DayRange(now, time.UTC).ClosedBefore(now) {
		t.Fatalf("expected today to be open")
	}

	if AllTime().ClosedBefore(now) {
		t.Fatalf("expected unbounded range to be open")
	}
}

func TestSortProductSales(t *testing.T) {
	t.Parallel()

	rows := []ProductSales{
		{ProductID: "P3", Revenue: decimal.NewFromInt(5)},
		{ProductID: "P2", Revenue: decimal.NewFromInt(10)},
		{ProductID: "P1", Revenue: decimal.NewFromInt(10)},
	}
	SortProductSales(rows)

	if rows[0].ProductID != "P1" || rows[1].ProductID != "P2" || rows[2].ProductID != "P3" {
		t.Fatalf("unexpected order: %v", rows)
	}
}
