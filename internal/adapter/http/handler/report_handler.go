package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iho/saleledger/internal/adapter/http/dto"
	"github.com/iho/saleledger/internal/domain"
)

// ReportService defines report use case methods needed by the handler.
type ReportService interface {
	DailyReport(ctx context.Context, date time.Time) (*domain.PeriodReport, error)
	MonthlyReport(ctx context.Context, year int, month time.Month) (*domain.PeriodReport, error)
	ProductReport(ctx context.Context, productID string, r domain.TimeRange) (*domain.ProductReport, error)
	PaymentMethodReport(ctx context.Context, r domain.TimeRange) ([]domain.PaymentMethodSummary, error)
	InstallmentReport(ctx context.Context, r domain.TimeRange) ([]domain.InstallmentSummary, error)
}

// ReportHandler serves read-only ledger aggregates.
type ReportHandler struct {
	reportUC ReportService
	loc      *time.Location
}

// NewReportHandler creates a new ReportHandler. Dates are read in loc, which
// should match the report use case's location.
func NewReportHandler(reportUC ReportService, loc *time.Location) *ReportHandler {
	if loc == nil {
		loc = time.UTC
	}

	return &ReportHandler{reportUC: reportUC, loc: loc}
}

// Daily reports one calendar day.
func (h *ReportHandler) Daily(w http.ResponseWriter, r *http.Request) {
	date, err := dto.ParseDate(r.URL.Query().Get("date"), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err.Error())
		return
	}

	report, err := h.reportUC.DailyReport(r.Context(), date)
	if err != nil {
		writeDomainError(w, r, "failed to build daily report", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Monthly reports one calendar month.
func (h *ReportHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	year, month, err := dto.ParseYearMonth(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month", err.Error())
		return
	}

	report, err := h.reportUC.MonthlyReport(r.Context(), year, month)
	if err != nil {
		writeDomainError(w, r, "failed to build monthly report", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Product reports one product over [from, to).
func (h *ReportHandler) Product(w http.ResponseWriter, r *http.Request) {
	rng, err := dto.ParseTimeRange(r.URL.Query(), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time range", err.Error())
		return
	}

	report, err := h.reportUC.ProductReport(r.Context(), chi.URLParam(r, "id"), rng)
	if err != nil {
		writeDomainError(w, r, "failed to build product report", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// PaymentMethods breaks revenue down by payment method over [from, to).
func (h *ReportHandler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	rng, err := dto.ParseTimeRange(r.URL.Query(), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time range", err.Error())
		return
	}

	summaries, err := h.reportUC.PaymentMethodReport(r.Context(), rng)
	if err != nil {
		writeDomainError(w, r, "failed to build payment method report", err)
		return
	}

	if summaries == nil {
		summaries = []domain.PaymentMethodSummary{}
	}

	writeJSON(w, http.StatusOK, summaries)
}

// Installments groups installment sales by number of payments over [from, to).
func (h *ReportHandler) Installments(w http.ResponseWriter, r *http.Request) {
	rng, err := dto.ParseTimeRange(r.URL.Query(), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time range", err.Error())
		return
	}

	rows, err := h.reportUC.InstallmentReport(r.Context(), rng)
	if err != nil {
		writeDomainError(w, r, "failed to build installment report", err)
		return
	}

	if rows == nil {
		rows = []domain.InstallmentSummary{}
	}

	writeJSON(w, http.StatusOK, rows)
}
