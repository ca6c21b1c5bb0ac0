package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Catalog errors
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStockUnderflow    = errors.New("stock adjustment would make quantity negative")
	ErrInvalidProduct    = errors.New("invalid product")
	ErrProductExists     = errors.New("product already exists")

	// Sale errors
	ErrInvalidSaleRequest   = errors.New("invalid sale request")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrSaleNotFound         = errors.New("sale not found")
	ErrReturnExceedsSold    = errors.New("returned quantity exceeds quantity sold")
	ErrSaleInconsistent     = errors.New("sale totals do not reconcile")
	ErrInvalidDiscount      = errors.New("invalid discount")

	// Audit errors
	ErrInvalidAuditEntry = errors.New("invalid audit entry")

	// Report errors
	ErrInvalidReportPeriod = errors.New("invalid report period")
)

// StockShortage describes one product that cannot cover a sale.
type StockShortage struct {
	ProductID string `json:"product_id"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
}

// InsufficientStockError lists every product short of stock for a single sale.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.ProductID, s.Requested, s.Available))
	}

	return ErrInsufficientStock.Error() + ": " + strings.Join(parts, ", ")
}

// Is reports whether target is ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ProductNotFoundError names the products a request referenced that do not exist.
type ProductNotFoundError struct {
	ProductIDs []string
}

func (e *ProductNotFoundError) Error() string {
	return ErrProductNotFound.Error() + ": " + strings.Join(e.ProductIDs, ", ")
}

// Is reports whether target is ErrProductNotFound.
func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

// InvalidSaleRequest wraps a validation failure so callers can match both the
// generic sentinel and the specific reason.
func InvalidSaleRequest(reason error) error {
	return fmt.Errorf("%w: %w", ErrInvalidSaleRequest, reason)
}
