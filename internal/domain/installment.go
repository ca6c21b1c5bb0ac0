package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MaxInstallments is the largest schedule a sale may carry.
const MaxInstallments = 12

// Installment is one scheduled payment of a sale total.
type Installment struct {
	DueDate time.Time
	Amount  decimal.Decimal
	Index   int
}

// BuildInstallments splits total into n monthly payments starting at firstDue.
// Amounts are rounded down to the cent and the last payment absorbs the
// remainder, so the schedule always sums to total and no payment is negative.
// n <= 1 yields no schedule.
func BuildInstallments(total decimal.Decimal, n int, firstDue time.Time) ([]Installment, error) {
	if n < 0 || n > MaxInstallments {
		return nil, fmt.Errorf("%w: installments must be between 0 and %d", ErrInvalidSaleRequest, MaxInstallments)
	}

	if n <= 1 {
		return nil, nil
	}

	base := total.Div(decimal.NewFromInt(int64(n))).RoundDown(2)
	out := make([]Installment, n)
	allocated := decimal.Zero

	for i := range n {
		amount := base
		if i == n-1 {
			amount = total.Sub(allocated)
		}

		out[i] = Installment{
			Index:   i + 1,
			DueDate: addMonthsClamped(firstDue, i),
			Amount:  amount,
		}
		allocated = allocated.Add(amount)
	}

	return out, nil
}

// addMonthsClamped moves t forward by months, keeping the day of month but
// clamping it to the last day of the target month. Jan 31 plus one month is
// the last day of February, not early March.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	target := month + time.Month(months)

	if last := time.Date(year, target+1, 0, 0, 0, 0, 0, t.Location()).Day(); day > last {
		day = last
	}

	return time.Date(year, target, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
