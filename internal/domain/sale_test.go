package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestSale() *Sale {
	p1 := &Product{ID: "P1", Name: "Pen"}
	p2 := &Product{ID: "P2", Name: "Notebook"}

	sale := &Sale{
		ID:            "S1",
		Kind:          SaleKindSale,
		PaymentMethod: PaymentMethodCash,
		Actor:         "u1",
		CommittedAt:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Lines: []SaleLine{
			NewSaleLine(1, p1, 3, decimal.RequireFromString("2.50")),
			NewSaleLine(2, p2, 1, decimal.RequireFromString("10.00")),
		},
	}
	sale.Total = sale.ComputeTotal()

	return sale
}

func TestSaleComputeTotal(t *testing.T) {
	t.Parallel()

	sale := newTestSale()
	if !sale.Total.Equal(decimal.RequireFromString("17.50")) {
		t.Fatalf("expected total 17.50, got %s", sale.Total)
	}

	if err := sale.Validate(); err != nil {
		t.Fatalf("expected valid sale, got %v", err)
	}
}

func TestSaleValidate(t *testing.T) {
	t.Parallel()

	original := "S0"

	tests := []struct {
		name   string
		mutate func(s *Sale)
		want   error
	}{
		{
			name:   "no lines",
			mutate: func(s *Sale) { s.Lines = nil },
			want:   ErrSaleInconsistent,
		},
		{
			name:   "unknown payment method",
			mutate: func(s *Sale) { s.PaymentMethod = "barter" },
			want:   ErrInvalidPaymentMethod,
		},
		{
			name:   "total does not reconcile",
			mutate: func(s *Sale) { s.Total = s.Total.Add(decimal.NewFromInt(1)) },
			want:   ErrSaleInconsistent,
		},
		{
			name:   "subtotal tampered",
			mutate: func(s *Sale) { s.Lines[0].Subtotal = decimal.NewFromInt(1) },
			want:   ErrSaleInconsistent,
		},
		{
			name: "negative quantity on a sale",
			mutate: func(s *Sale) {
				s.Lines[0].Quantity = -3
				s.Lines[0].Subtotal = s.Lines[0].UnitPrice.Mul(decimal.NewFromInt(-3))
			},
			want: ErrSaleInconsistent,
		},
		{
			name:   "sale referencing original",
			mutate: func(s *Sale) { s.OriginalSaleID = &original },
			want:   ErrSaleInconsistent,
		},
		{
			name:   "return without original",
			mutate: func(s *Sale) { s.Kind = SaleKindReturn },
			want:   ErrSaleInconsistent,
		},
		{
			name: "installments do not sum to total",
			mutate: func(s *Sale) {
				s.Installments = []Installment{{Index: 1, Amount: decimal.NewFromInt(1)}}
			},
			want: ErrSaleInconsistent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sale := newTestSale()
			tt.mutate(sale)

			if err := sale.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSaleValidate_Return(t *testing.T) {
	t.Parallel()

	original := "S1"
	p1 := &Product{ID: "P1", Name: "Pen"}
	ret := &Sale{
		ID:             "R1",
		Kind:           SaleKindReturn,
		OriginalSaleID: &original,
		PaymentMethod:  PaymentMethodCash,
		Lines:          []SaleLine{NewSaleLine(1, p1, -2, decimal.RequireFromString("2.50"))},
	}
	ret.Total = ret.ComputeTotal()

	if err := ret.Validate(); err != nil {
		t.Fatalf("expected valid return, got %v", err)
	}

	if !ret.Total.Equal(decimal.RequireFromString("-5")) {
		t.Fatalf("expected total -5, got %s", ret.Total)
	}
}

func TestApplyDiscount(t *testing.T) {
	t.Parallel()

	p1 := &Product{ID: "P1"}
	p2 := &Product{ID: "P2"}
	p3 := &Product{ID: "P3"}

	t.Run("proportional with last line absorbing rounding", func(t *testing.T) {
		lines := []SaleLine{
			NewSaleLine(1, p1, 1, decimal.NewFromInt(10)),
			NewSaleLine(2, p2, 1, decimal.NewFromInt(10)),
			NewSaleLine(3, p3, 1, decimal.NewFromInt(10)),
		}

		if err := ApplyDiscount(lines, decimal.NewFromInt(10)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"3.33", "3.33", "3.34"}
		for i, l := range lines {
			if !l.Discount.Equal(decimal.RequireFromString(want[i])) {
				t.Fatalf("line %d: expected discount %s, got %s", i+1, want[i], l.Discount)
			}
		}

		sale := &Sale{Kind: SaleKindSale, PaymentMethod: PaymentMethodCash, Lines: lines}
		sale.Total = sale.ComputeTotal()
		if !sale.Total.Equal(decimal.NewFromInt(20)) || !sale.Discount().Equal(decimal.NewFromInt(10)) {
			t.Fatalf("expected total 20 after discount 10, got %s and %s", sale.Total, sale.Discount())
		}

		if err := sale.Validate(); err != nil {
			t.Fatalf("expected discounted sale to validate, got %v", err)
		}
	})

	t.Run("full discount zeroes every line", func(t *testing.T) {
		lines := []SaleLine{
			NewSaleLine(1, p1, 3, decimal.RequireFromString("0.3333")),
			NewSaleLine(2, p2, 1, decimal.RequireFromString("0.01")),
		}

		if err := ApplyDiscount(lines, decimal.RequireFromString("1.0099")); !errors.Is(err, ErrInvalidDiscount) {
			t.Fatalf("expected fractional cents to be refused, got %v", err)
		}

		lines[0] = NewSaleLine(1, p1, 3, decimal.RequireFromString("0.33"))
		if err := ApplyDiscount(lines, decimal.RequireFromString("1.00")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, l := range lines {
			if !l.Subtotal.IsZero() || l.Discount.IsNegative() {
				t.Fatalf("expected zero subtotal, got %+v", l)
			}
		}
	})

	t.Run("rejects discounts outside the sale amount", func(t *testing.T) {
		lines := []SaleLine{NewSaleLine(1, p1, 1, decimal.NewFromInt(5))}

		if err := ApplyDiscount(lines, decimal.NewFromInt(6)); !errors.Is(err, ErrInvalidDiscount) {
			t.Fatalf("expected ErrInvalidDiscount, got %v", err)
		}

		if err := ApplyDiscount(lines, decimal.NewFromInt(-1)); !errors.Is(err, ErrInvalidDiscount) {
			t.Fatalf("expected ErrInvalidDiscount, got %v", err)
		}
	})
}

func TestNewReturnLine(t *testing.T) {
	t.Parallel()

	original := "S1"
	p1 := &Product{ID: "P1", Name: "Pen"}

	// 10.00 refunded for 3 units: 3.3334 per unit, the 0.0002 overshoot is discounted back.
	l := NewReturnLine(1, p1, 3, decimal.NewFromInt(10))
	if l.Quantity != -3 || !l.UnitPrice.Equal(decimal.RequireFromString("3.3334")) {
		t.Fatalf("unexpected line %+v", l)
	}

	if !l.Subtotal.Equal(decimal.NewFromInt(-10)) || !l.Discount.Equal(decimal.RequireFromString("-0.0002")) {
		t.Fatalf("expected subtotal -10 and discount -0.0002, got %s and %s", l.Subtotal, l.Discount)
	}

	ret := &Sale{Kind: SaleKindReturn, OriginalSaleID: &original, PaymentMethod: PaymentMethodCash, Lines: []SaleLine{l}}
	ret.Total = ret.ComputeTotal()
	if err := ret.Validate(); err != nil {
		t.Fatalf("expected valid return, got %v", err)
	}

	exact := NewReturnLine(1, p1, 2, decimal.NewFromInt(5))
	if !exact.UnitPrice.Equal(decimal.RequireFromString("2.5")) || !exact.Discount.IsZero() {
		t.Fatalf("expected an undiscounted line at 2.5, got %+v", exact)
	}
}

func TestSaleValidate_DiscountBounds(t *testing.T) {
	t.Parallel()

	sale := newTestSale()
	sale.Lines[1].Discount = decimal.NewFromInt(11)
	sale.Lines[1].Subtotal = sale.Lines[1].Gross().Sub(sale.Lines[1].Discount)
	sale.Total = sale.ComputeTotal()

	if err := sale.Validate(); !errors.Is(err, ErrSaleInconsistent) {
		t.Fatalf("expected discount above gross to be inconsistent, got %v", err)
	}

	sale.Lines[1].Discount = decimal.NewFromInt(-1)
	sale.Lines[1].Subtotal = sale.Lines[1].Gross().Sub(sale.Lines[1].Discount)
	sale.Total = sale.ComputeTotal()

	if err := sale.Validate(); !errors.Is(err, ErrSaleInconsistent) {
		t.Fatalf("expected negative discount on a sale to be inconsistent, got %v", err)
	}
}

func TestSaleQuantityByProduct(t *testing.T) {
	t.Parallel()

	p1 := &Product{ID: "P1"}
	sale := &Sale{Lines: []SaleLine{
		NewSaleLine(1, p1, 2, decimal.NewFromInt(1)),
		NewSaleLine(2, &Product{ID: "P2"}, 1, decimal.NewFromInt(1)),
		NewSaleLine(3, p1, 3, decimal.NewFromInt(1)),
	}}

	got := sale.QuantityByProduct()
	if got["P1"] != 5 || got["P2"] != 1 {
		t.Fatalf("unexpected aggregation: %v", got)
	}
}

func TestParsePaymentMethod(t *testing.T) {
	t.Parallel()

	m, err := ParsePaymentMethod(" Card ")
	if err != nil || m != PaymentMethodCard {
		t.Fatalf("expected card, got %q (%v)", m, err)
	}

	if _, err := ParsePaymentMethod("cheque"); !errors.Is(err, ErrInvalidPaymentMethod) {
		t.Fatalf("expected ErrInvalidPaymentMethod, got %v", err)
	}
}

func TestBuildInstallments(t *testing.T) {
	t.Parallel()

	first := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	t.Run("single payment has no schedule", func(t *testing.T) {
		got, err := BuildInstallments(decimal.NewFromInt(100), 1, first)
		if err != nil || got != nil {
			t.Fatalf("expected nil schedule, got %v (%v)", got, err)
		}
	})

	t.Run("last installment absorbs rounding", func(t *testing.T) {
		got, err := BuildInstallments(decimal.NewFromInt(100), 3, first)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(got) != 3 {
			t.Fatalf("expected 3 installments, got %d", len(got))
		}

		if !got[0].Amount.Equal(decimal.RequireFromString("33.33")) {
			t.Fatalf("expected 33.33, got %s", got[0].Amount)
		}

		if !got[2].Amount.Equal(decimal.RequireFromString("33.34")) {
			t.Fatalf("expected last installment 33.34, got %s", got[2].Amount)
		}

		if got[1].Index != 2 || got[1].DueDate.Month() != time.February || got[1].DueDate.Day() != 28 {
			t.Fatalf("unexpected second installment %+v", got[1])
		}
	})

	t.Run("small totals never produce negative payments", func(t *testing.T) {
		got, err := BuildInstallments(decimal.RequireFromString("0.10"), 12, first)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		sum := decimal.Zero
		for _, inst := range got {
			if inst.Amount.IsNegative() {
				t.Fatalf("installment %d is negative: %s", inst.Index, inst.Amount)
			}
			sum = sum.Add(inst.Amount)
		}

		if !sum.Equal(decimal.RequireFromString("0.10")) {
			t.Fatalf("expected schedule to sum to 0.10, got %s", sum)
		}

		if !got[11].Amount.Equal(decimal.RequireFromString("0.10")) {
			t.Fatalf("expected last installment to absorb 0.10, got %s", got[11].Amount)
		}
	})

	t.Run("month end start keeps one payment per month", func(t *testing.T) {
		start := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)

		got, err := BuildInstallments(decimal.NewFromInt(120), 12, start)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		wantDays := []int{31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
		for i, inst := range got {
			if inst.DueDate.Month() != time.Month(i+1) || inst.DueDate.Day() != wantDays[i] {
				t.Fatalf("installment %d due %s", inst.Index, inst.DueDate.Format("2006-01-02"))
			}
		}
	})

	t.Run("too many installments", func(t *testing.T) {
		_, err := BuildInstallments(decimal.NewFromInt(100), MaxInstallments+1, first)
		if !errors.Is(err, ErrInvalidSaleRequest) {
			t.Fatalf("expected ErrInvalidSaleRequest, got %v", err)
		}
	})
}
