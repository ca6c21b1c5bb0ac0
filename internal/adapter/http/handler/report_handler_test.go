package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/saleledger/internal/domain"
)

type reportServiceStub struct {
	dailyDate time.Time
	year      int
	month     time.Month
	productID string
	rng       domain.TimeRange
	err       error
	summaries []domain.PaymentMethodSummary
	plans     []domain.InstallmentSummary
}

func (s *reportServiceStub) DailyReport(ctx context.Context, date time.Time) (*domain.PeriodReport, error) {
	s.dailyDate = date
	return &domain.PeriodReport{}, s.err
}

func (s *reportServiceStub) MonthlyReport(ctx context.Context, year int, month time.Month) (*domain.PeriodReport, error) {
	s.year, s.month = year, month
	if _, err := domain.MonthRange(year, month, time.UTC); err != nil {
		return nil, err
	}
	return &domain.PeriodReport{}, s.err
}

func (s *reportServiceStub) ProductReport(ctx context.Context, productID string, r domain.TimeRange) (*domain.ProductReport, error) {
	s.productID, s.rng = productID, r
	return &domain.ProductReport{ProductID: productID, Range: r}, s.err
}

func (s *reportServiceStub) PaymentMethodReport(ctx context.Context, r domain.TimeRange) ([]domain.PaymentMethodSummary, error) {
	s.rng = r
	return s.summaries, s.err
}

func (s *reportServiceStub) InstallmentReport(ctx context.Context, r domain.TimeRange) ([]domain.InstallmentSummary, error) {
	s.rng = r
	return s.plans, s.err
}

func TestReportHandler_DailyReadsDateInLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	stub := &reportServiceStub{}
	h := NewReportHandler(stub, loc)

	rr := httptest.NewRecorder()
	h.Daily(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports/daily?date=2024-03-10", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	if !stub.dailyDate.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, loc)) {
		t.Fatalf("date parsed as %v", stub.dailyDate)
	}

	rr = httptest.NewRecorder()
	h.Daily(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports/daily?date=10/03/2024", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestReportHandler_Monthly(t *testing.T) {
	stub := &reportServiceStub{}
	h := NewReportHandler(stub, nil)

	rr := httptest.NewRecorder()
	h.Monthly(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports/monthly?year=2024&month=2", nil))
	if rr.Code != http.StatusOK || stub.year != 2024 || stub.month != time.February {
		t.Fatalf("unexpected result %d %d/%d", rr.Code, stub.year, stub.month)
	}

	rr = httptest.NewRecorder()
	h.Monthly(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports/monthly?year=2024&month=13", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for month 13, got %d", rr.Code)
	}
}

func TestReportHandler_ProductAndPaymentMethods(t *testing.T) {
	stub := &reportServiceStub{}
	h := NewReportHandler(stub, time.UTC)

	rr := httptest.NewRecorder()
	h.Product(rr, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/reports/products/P1?from=2024-01-01", nil), "id", "P1"))
	if rr.Code != http.StatusOK || stub.productID != "P1" || stub.rng.From.IsZero() || !stub.rng.To.IsZero() {
		t.Fatalf("unexpected product report call: %d %+v", rr.Code, stub)
	}

	rr = httptest.NewRecorder()
	h.PaymentMethods(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports/payment-methods", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "[]\n" {
		t.Fatalf("expected empty list, got %d %q", rr.Code, rr.Body.String())
	}

	stub.err = errors.New("disk on fire")
	rr = httptest.NewRecorder()
	h.PaymentMethods(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports/payment-methods", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestReportHandler_Installments(t *testing.T) {
	stub := &reportServiceStub{}
	h := NewReportHandler(stub, time.UTC)

	rr := httptest.NewRecorder()
	h.Installments(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports/installments?from=2024-03-01&to=2024-04-01", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "[]\n" {
		t.Fatalf("expected empty list, got %d %q", rr.Code, rr.Body.String())
	}

	if !stub.rng.From.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("range parsed as %+v", stub.rng)
	}

	stub.plans = []domain.InstallmentSummary{{Installments: 3, SaleCount: 2, Total: decimal.NewFromInt(300), Average: decimal.NewFromInt(150)}}
	rr = httptest.NewRecorder()
	h.Installments(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports/installments", nil))

	var rows []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(rows) != 1 || rows[0]["installments"] != float64(3) || rows[0]["average"] != "150" {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.Installments(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports/installments?from=yesterday", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
