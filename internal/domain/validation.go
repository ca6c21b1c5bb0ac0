package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrInvalidProductName = errors.New("invalid product name")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidActor       = errors.New("invalid actor")
	ErrInvalidIDFormat    = errors.New("invalid ID format")
)

// Validation constants
const (
	MaxProductNameLength = 255
	MaxActorLength       = 128
	MaxIDLength          = 64
	MaxLinesPerSale      = 500
	MaxLineQuantity      = 1_000_000
	MaxUnitPrice         = "1000000000" // 1 billion
	MaxPriceScale        = 4            // decimal places kept by storage
)

// ValidateProductName validates a catalog product name.
func ValidateProductName(name string) error {
	name = strings.TrimSpace(name)

	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidProductName)
	}

	if len(name) > MaxProductNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidProductName, MaxProductNameLength)
	}

	return nil
}

// ValidatePrice validates a unit price.
func ValidatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidPrice)
	}

	if price.GreaterThan(decimal.RequireFromString(MaxUnitPrice)) {
		return fmt.Errorf("%w: maximum price is %s", ErrInvalidPrice, MaxUnitPrice)
	}

	if !price.Equal(price.Round(MaxPriceScale)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidPrice, MaxPriceScale)
	}

	return nil
}

// ValidateActor validates the operator identifier attached to a mutation.
func ValidateActor(actor string) error {
	actor = strings.TrimSpace(actor)

	if actor == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidActor)
	}

	if len(actor) > MaxActorLength {
		return fmt.Errorf("%w: actor exceeds %d characters", ErrInvalidActor, MaxActorLength)
	}

	return nil
}

// ValidateID validates an entity identifier received from outside.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIDFormat)
	}

	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidIDFormat, MaxIDLength)
	}

	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int, error) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}
