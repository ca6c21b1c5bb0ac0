package dto

import (
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

func TestCommitSaleRequest_ToUseCaseInput(t *testing.T) {
	due := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	req := &CommitSaleRequest{
		PaymentMethod: " Card ",
		Lines:         []LineItem{{ProductID: "P1", Quantity: 3}, {ProductID: "P2", Quantity: 1}},
		Installments:  3,
		FirstDueDate:  &due,
	}

	got, err := req.ToUseCaseInput("cashier-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.PaymentMethod != domain.PaymentMethodCard {
		t.Errorf("payment method = %q, want card", got.PaymentMethod)
	}

	if got.Actor != "cashier-1" || got.Installments != 3 || got.FirstDueDate != &due {
		t.Errorf("unexpected input: %+v", got)
	}

	if len(got.Lines) != 2 || got.Lines[0].ProductID != "P1" || got.Lines[0].Quantity != 3 {
		t.Errorf("unexpected lines: %+v", got.Lines)
	}
}

func TestCommitSaleRequest_DecodesDiscountAndPriceOverride(t *testing.T) {
	var req CommitSaleRequest
	body := `{"payment_method":"cash","discount":"2.50","lines":[{"product_id":"P1","quantity":1,"unit_price":"7.25"},{"product_id":"P2","quantity":2}]}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}

	got, err := req.ToUseCaseInput("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !got.Discount.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("discount = %s", got.Discount)
	}

	if got.Lines[0].UnitPrice == nil || !got.Lines[0].UnitPrice.Equal(decimal.RequireFromString("7.25")) {
		t.Errorf("expected a price override on line 1, got %v", got.Lines[0].UnitPrice)
	}

	if got.Lines[1].UnitPrice != nil {
		t.Errorf("line 2 should use the catalog price, got %v", got.Lines[1].UnitPrice)
	}
}

func TestBatchCreateFromUseCase(t *testing.T) {
	req := &BatchCreateProductsRequest{Products: []CreateProductRequest{{ID: "A", Name: "a"}, {ID: "B"}}}
	inputs := req.ToUseCaseInput("admin")
	if len(inputs) != 2 || inputs[1].ID != "B" || inputs[1].Actor != "admin" {
		t.Fatalf("unexpected inputs: %+v", inputs)
	}

	resp := BatchCreateFromUseCase(&usecase.BatchCreateResult{
		Created: []*domain.Product{{ID: "A", Name: "a"}},
		Failed:  []usecase.BatchRowError{{Row: 2, ProductID: "B", Err: domain.ErrInvalidProduct}},
	})

	if resp.SuccessCount != 1 || len(resp.Created) != 1 {
		t.Fatalf("unexpected created rows: %+v", resp)
	}

	if len(resp.Errors) != 1 || resp.Errors[0].Row != 2 || resp.Errors[0].Error != domain.ErrInvalidProduct.Error() {
		t.Fatalf("unexpected errors: %+v", resp.Errors)
	}
}

func TestCommitSaleRequest_InvalidPaymentMethod(t *testing.T) {
	req := &CommitSaleRequest{PaymentMethod: "barter", Lines: []LineItem{{ProductID: "P1", Quantity: 1}}}

	_, err := req.ToUseCaseInput("u1")
	if !errors.Is(err, domain.ErrInvalidSaleRequest) || !errors.Is(err, domain.ErrInvalidPaymentMethod) {
		t.Fatalf("expected invalid payment method, got %v", err)
	}
}

func TestReturnSaleRequest_ToUseCaseInput(t *testing.T) {
	req := &ReturnSaleRequest{Reason: "damaged", Lines: []LineItem{{ProductID: "P1", Quantity: 1}}}

	got := req.ToUseCaseInput("s1", "u1")
	if got.OriginalSaleID != "s1" || got.Actor != "u1" || got.Reason != "damaged" || len(got.Lines) != 1 {
		t.Fatalf("unexpected input: %+v", got)
	}
}

func TestCreateProductRequest_ToUseCaseInput(t *testing.T) {
	req := &CreateProductRequest{ID: "SKU", Name: "Tea", Price: decimal.RequireFromString("2.50"), Quantity: 4}

	got := req.ToUseCaseInput("admin")
	if got.ID != "SKU" || got.Actor != "admin" || !got.Price.Equal(decimal.RequireFromString("2.5")) || got.Quantity != 4 {
		t.Fatalf("unexpected input: %+v", got)
	}
}

func TestParseTimeRange(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)

	tests := []struct {
		name    string
		query   url.Values
		want    domain.TimeRange
		wantErr bool
	}{
		{
			name:  "open",
			query: url.Values{},
			want:  domain.TimeRange{},
		},
		{
			name:  "days in location",
			query: url.Values{"from": {"2024-01-01"}, "to": {"2024-01-02"}},
			want: domain.TimeRange{
				From: time.Date(2024, 1, 1, 0, 0, 0, 0, loc),
				To:   time.Date(2024, 1, 2, 0, 0, 0, 0, loc),
			},
		},
		{
			name:  "instants",
			query: url.Values{"from": {"2024-01-01T10:00:00Z"}},
			want:  domain.TimeRange{From: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		},
		{
			name:    "garbage",
			query:   url.Values{"to": {"yesterday"}},
			wantErr: true,
		},
		{
			name:    "reversed",
			query:   url.Values{"from": {"2024-02-01"}, "to": {"2024-01-01"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeRange(tt.query, loc)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidReportPeriod) {
					t.Fatalf("expected ErrInvalidReportPeriod, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !got.From.Equal(tt.want.From) || !got.To.Equal(tt.want.To) {
				t.Errorf("ParseTimeRange() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseYearMonth(t *testing.T) {
	year, month, err := ParseYearMonth(url.Values{"year": {"2024"}, "month": {"2"}})
	if err != nil || year != 2024 || month != time.February {
		t.Fatalf("ParseYearMonth() = %d, %v, %v", year, month, err)
	}

	if _, _, err := ParseYearMonth(url.Values{"year": {"2024"}}); !errors.Is(err, domain.ErrInvalidReportPeriod) {
		t.Fatalf("expected ErrInvalidReportPeriod, got %v", err)
	}
}

func TestSaleFromDomain(t *testing.T) {
	orig := "s0"
	sale := &domain.Sale{
		ID:             "r1",
		Kind:           domain.SaleKindReturn,
		OriginalSaleID: &orig,
		PaymentMethod:  domain.PaymentMethodCash,
		Total:          decimal.RequireFromString("-10"),
		Lines: []domain.SaleLine{{
			LineNo: 1, ProductID: "P1", Quantity: -1,
			UnitPrice: decimal.RequireFromString("10"), Subtotal: decimal.RequireFromString("-10"),
		}},
	}

	resp := SaleFromDomain(sale)
	if resp.Kind != "return" || *resp.OriginalSaleID != "s0" || len(resp.Lines) != 1 || resp.Installments != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if resp.Lines[0].Quantity != -1 || !resp.Lines[0].Subtotal.Equal(sale.Total) {
		t.Errorf("unexpected line: %+v", resp.Lines[0])
	}
}
