package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestInsufficientStockError(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("commit: %w", &InsufficientStockError{Shortages: []StockShortage{
		{ProductID: "P1", Requested: 3, Available: 2},
		{ProductID: "P2", Requested: 1, Available: 0},
	}})

	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected errors.Is to match ErrInsufficientStock")
	}

	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected errors.As to extract InsufficientStockError")
	}

	if len(stockErr.Shortages) != 2 {
		t.Fatalf("expected 2 shortages, got %d", len(stockErr.Shortages))
	}

	if !strings.Contains(err.Error(), "P2 (requested 1, available 0)") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestProductNotFoundError(t *testing.T) {
	t.Parallel()

	err := &ProductNotFoundError{ProductIDs: []string{"P9"}}
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected errors.Is to match ErrProductNotFound")
	}

	if errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("did not expect ErrInsufficientStock match")
	}
}

func TestInvalidSaleRequest(t *testing.T) {
	t.Parallel()

	err := InvalidSaleRequest(ErrInvalidPaymentMethod)
	if !errors.Is(err, ErrInvalidSaleRequest) || !errors.Is(err, ErrInvalidPaymentMethod) {
		t.Fatalf("expected both sentinels to match, got %v", err)
	}
}
