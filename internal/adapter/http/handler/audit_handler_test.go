package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

type auditServiceStub struct {
	recorded usecase.RecordInput
	filter   domain.AuditFilter
}

func (s *auditServiceStub) Record(ctx context.Context, input usecase.RecordInput) (*domain.AuditEntry, error) {
	s.recorded = input
	if input.Actor == "" {
		return nil, domain.ErrInvalidActor
	}
	return &domain.AuditEntry{ID: "a1", Actor: input.Actor, Action: input.Action}, nil
}

func (s *auditServiceStub) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	s.filter = filter
	return []*domain.AuditEntry{{ID: "a1"}}, nil
}

type reconciliationStub struct {
	report *usecase.ConsistencyReport
	err    error
}

func (s *reconciliationStub) CheckConsistency(ctx context.Context) (*usecase.ConsistencyReport, error) {
	return s.report, s.err
}

func TestAuditHandler_ListPassesFilters(t *testing.T) {
	stub := &auditServiceStub{}
	h := NewAuditHandler(stub)

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet,
		"/api/v1/audit?actor=u1&action=sale.commit&subject_type=sale&subject_id=s1&limit=5&offset=10", nil))

	want := domain.AuditFilter{Actor: "u1", Action: "sale.commit", SubjectType: "sale", SubjectID: "s1", Limit: 5, Offset: 10}
	if rr.Code != http.StatusOK || stub.filter != want {
		t.Fatalf("unexpected filter %+v (status %d)", stub.filter, rr.Code)
	}
}

func TestAuditHandler_Record(t *testing.T) {
	stub := &auditServiceStub{}
	h := NewAuditHandler(stub)

	req := jsonRequest(t, http.MethodPost, "/api/v1/audit", map[string]any{
		"action": "drawer.open", "subject_type": "register", "subject_id": "till-1",
	})
	req = req.WithContext(domain.WithActor(req.Context(), "u7"))
	rr := httptest.NewRecorder()
	h.Record(rr, req)

	if rr.Code != http.StatusCreated || stub.recorded.Actor != "u7" {
		t.Fatalf("unexpected result %d %+v", rr.Code, stub.recorded)
	}

	rr = httptest.NewRecorder()
	h.Record(rr, jsonRequest(t, http.MethodPost, "/api/v1/audit", map[string]any{"action": "drawer.open"}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without actor, got %d", rr.Code)
	}
}

func TestLedgerHandler_Consistency(t *testing.T) {
	h := NewLedgerHandler(&reconciliationStub{report: &usecase.ConsistencyReport{
		Consistent:    false,
		Discrepancies: []usecase.Discrepancy{{SubjectType: "product", SubjectID: "P1", Problem: "negative stock"}},
	}})

	rr := httptest.NewRecorder()
	h.Consistency(rr, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/consistency", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	h = NewLedgerHandler(&reconciliationStub{err: errors.New("timeout")})
	rr = httptest.NewRecorder()
	h.Consistency(rr, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/consistency", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	h := NewHealthHandler().
		WithCheck("storage", func(ctx context.Context) error { return nil })

	rr := httptest.NewRecorder()
	h.Readiness(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	h.WithCheck("redis", func(ctx context.Context) error { return errors.New("connection refused") })
	rr = httptest.NewRecorder()
	h.Readiness(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Liveness(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
