package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog item with a current unit price and on-hand quantity.
type Product struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	Price     decimal.Decimal
	ID        string
	Name      string
	Category  string
	Quantity  int64
	Version   int64
}

// ValidateAdjust checks that applying delta keeps the on-hand quantity non-negative.
func (p *Product) ValidateAdjust(delta int64) error {
	if p.Quantity+delta < 0 {
		return fmt.Errorf("%w: product %s has %d, adjustment %d", ErrStockUnderflow, p.ID, p.Quantity, delta)
	}

	return nil
}

// ApplyAdjust returns the quantity after delta.
func (p *Product) ApplyAdjust(delta int64) int64 {
	return p.Quantity + delta
}

// CanFulfil reports whether qty units can be taken from stock.
func (p *Product) CanFulfil(qty int64) bool {
	return qty <= p.Quantity
}

// Validate checks catalog invariants.
func (p *Product) Validate() error {
	if err := ValidateProductName(p.Name); err != nil {
		return err
	}

	if err := ValidatePrice(p.Price); err != nil {
		return err
	}

	if p.Quantity < 0 {
		return fmt.Errorf("%w: quantity cannot be negative", ErrInvalidProduct)
	}

	return nil
}
