package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how a sale was settled.
type PaymentMethod string

const (
	PaymentMethodCash  PaymentMethod = "cash"
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodOther PaymentMethod = "other"
)

// ParsePaymentMethod normalises and validates a payment method name.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, s)
	}

	return m, nil
}

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodOther:
		return true
	}

	return false
}

// SaleKind distinguishes ordinary sales from returns.
type SaleKind string

const (
	SaleKindSale   SaleKind = "sale"
	SaleKindReturn SaleKind = "return"
)

// SaleLine is one product line of a committed sale. UnitPrice is the price
// charged at commit time and never changes afterwards. Discount is the line's
// share of a sale-level discount and Subtotal is Quantity*UnitPrice-Discount.
// Return lines mirror sales: quantity, discount and subtotal are all <= 0.
type SaleLine struct {
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	Subtotal    decimal.Decimal
	ProductID   string
	ProductName string
	LineNo      int
	Quantity    int64
}

// Sale is an immutable ledger record. Returns are sales of kind SaleKindReturn
// with negative line quantities.
type Sale struct {
	CommittedAt    time.Time
	OriginalSaleID *string
	Total          decimal.Decimal
	ID             string
	Kind           SaleKind
	PaymentMethod  PaymentMethod
	Actor          string
	Reason         string
	Lines          []SaleLine
	Installments   []Installment
}

// NewSaleLine builds a line with its subtotal computed from the snapshot price.
func NewSaleLine(lineNo int, product *Product, qty int64, unitPrice decimal.Decimal) SaleLine {
	return SaleLine{
		LineNo:      lineNo,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    qty,
		UnitPrice:   unitPrice,
		Subtotal:    unitPrice.Mul(decimal.NewFromInt(qty)),
	}
}

// NewReturnLine builds a line giving back qty units for refund in total. The
// unit price is the per-unit refund rounded up to storage scale and the
// rounding is carried as a non-positive discount, so Subtotal is exactly -refund.
func NewReturnLine(lineNo int, product *Product, qty int64, refund decimal.Decimal) SaleLine {
	unit := refund.Div(decimal.NewFromInt(qty)).RoundUp(MaxPriceScale)
	gross := unit.Mul(decimal.NewFromInt(-qty))

	return SaleLine{
		LineNo:      lineNo,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    -qty,
		UnitPrice:   unit,
		Discount:    gross.Add(refund),
		Subtotal:    refund.Neg(),
	}
}

// Gross is the line amount before discount.
func (l SaleLine) Gross() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// ApplyDiscount spreads discount over lines in proportion to their gross
// amounts. Every line but the last is rounded down to the cent and the last
// absorbs the remainder; whatever a line cannot hold moves to earlier lines.
// The discount must lie between zero and the gross total.
func ApplyDiscount(lines []SaleLine, discount decimal.Decimal) error {
	if discount.IsZero() || len(lines) == 0 {
		return nil
	}

	if discount.IsNegative() {
		return fmt.Errorf("%w: %s is negative", ErrInvalidDiscount, discount)
	}

	if !discount.Equal(discount.Round(2)) {
		return fmt.Errorf("%w: %s has fractional cents", ErrInvalidDiscount, discount)
	}

	gross := decimal.Zero
	for _, l := range lines {
		gross = gross.Add(l.Gross())
	}

	if discount.GreaterThan(gross) {
		return fmt.Errorf("%w: %s exceeds the sale amount %s", ErrInvalidDiscount, discount, gross)
	}

	shares := make([]decimal.Decimal, len(lines))
	allocated := decimal.Zero
	last := len(lines) - 1

	for i, l := range lines[:last] {
		share := l.Gross().Mul(discount).Div(gross).RoundDown(2)
		shares[i] = decimal.Min(share, l.Gross())
		allocated = allocated.Add(shares[i])
	}
	shares[last] = discount.Sub(allocated)

	if overflow := shares[last].Sub(lines[last].Gross()); overflow.IsPositive() {
		shares[last] = lines[last].Gross()
		for i := last - 1; i >= 0 && overflow.IsPositive(); i-- {
			move := decimal.Min(overflow, lines[i].Gross().Sub(shares[i]))
			shares[i] = shares[i].Add(move)
			overflow = overflow.Sub(move)
		}
	}

	for i := range lines {
		lines[i].Discount = shares[i]
		lines[i].Subtotal = lines[i].Gross().Sub(shares[i])
	}

	return nil
}

// Discount sums line discounts.
func (s *Sale) Discount() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines {
		total = total.Add(l.Discount)
	}

	return total
}

// ComputeTotal sums line subtotals.
func (s *Sale) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines {
		total = total.Add(l.Subtotal)
	}

	return total
}

// QuantityByProduct sums line quantities per product.
func (s *Sale) QuantityByProduct() map[string]int64 {
	out := make(map[string]int64, len(s.Lines))
	for _, l := range s.Lines {
		out[l.ProductID] += l.Quantity
	}

	return out
}

// IsReturn reports whether the sale reverses an earlier one.
func (s *Sale) IsReturn() bool {
	return s.Kind == SaleKindReturn
}

// Validate checks that the record is internally consistent.
func (s *Sale) Validate() error {
	if len(s.Lines) == 0 {
		return fmt.Errorf("%w: sale has no lines", ErrSaleInconsistent)
	}

	if !s.PaymentMethod.Valid() {
		return ErrInvalidPaymentMethod
	}

	switch s.Kind {
	case SaleKindSale:
		if s.OriginalSaleID != nil {
			return fmt.Errorf("%w: sale cannot reference an original sale", ErrSaleInconsistent)
		}
	case SaleKindReturn:
		if s.OriginalSaleID == nil || *s.OriginalSaleID == "" {
			return fmt.Errorf("%w: return must reference the original sale", ErrSaleInconsistent)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrSaleInconsistent, s.Kind)
	}

	for _, l := range s.Lines {
		if l.Quantity == 0 {
			return fmt.Errorf("%w: line %d has zero quantity", ErrSaleInconsistent, l.LineNo)
		}

		if (s.Kind == SaleKindSale) != (l.Quantity > 0) {
			return fmt.Errorf("%w: line %d quantity sign does not match %s", ErrSaleInconsistent, l.LineNo, s.Kind)
		}

		if l.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d has negative unit price", ErrSaleInconsistent, l.LineNo)
		}

		gross := l.Gross()
		if !l.Subtotal.Equal(gross.Sub(l.Discount)) {
			return fmt.Errorf("%w: line %d subtotal %s", ErrSaleInconsistent, l.LineNo, l.Subtotal)
		}

		// The discount shares the line's sign and never exceeds its gross amount.
		if l.Discount.Sign()*gross.Sign() < 0 || l.Discount.Abs().GreaterThan(gross.Abs()) {
			return fmt.Errorf("%w: line %d discount %s", ErrSaleInconsistent, l.LineNo, l.Discount)
		}
	}

	if total := s.ComputeTotal(); !total.Equal(s.Total) {
		return fmt.Errorf("%w: total %s, lines sum to %s", ErrSaleInconsistent, s.Total, total)
	}

	if len(s.Installments) > 0 {
		sum := decimal.Zero
		for _, inst := range s.Installments {
			sum = sum.Add(inst.Amount)
		}

		if !sum.Equal(s.Total) {
			return fmt.Errorf("%w: installments sum to %s, total %s", ErrSaleInconsistent, sum, s.Total)
		}
	}

	return nil
}
