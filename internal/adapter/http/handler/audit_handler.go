package handler

import (
	"context"
	"net/http"

	"github.com/iho/saleledger/internal/adapter/http/dto"
	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

// AuditService defines audit use case methods needed by the handler.
type AuditService interface {
	Record(ctx context.Context, input usecase.RecordInput) (*domain.AuditEntry, error)
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error)
}

// AuditHandler exposes the audit log.
type AuditHandler struct {
	auditUC AuditService
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(auditUC AuditService) *AuditHandler {
	return &AuditHandler{auditUC: auditUC}
}

// List returns the most recent entries matching the query filters.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	entries, err := h.auditUC.List(r.Context(), domain.AuditFilter{
		Actor:       q.Get("actor"),
		Action:      q.Get("action"),
		SubjectType: q.Get("subject_type"),
		SubjectID:   q.Get("subject_id"),
		Limit:       parseIntQuery(r, "limit", 50),
		Offset:      parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, r, "failed to list audit entries", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AuditEntriesFromDomain(entries))
}

// Record appends a free-standing entry, such as a drawer opening.
func (h *AuditHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req dto.RecordAuditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	actor, _ := domain.ActorFromContext(r.Context())

	entry, err := h.auditUC.Record(r.Context(), req.ToUseCaseInput(actor))
	if err != nil {
		writeDomainError(w, r, "failed to record audit entry", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.AuditEntryFromDomain(entry))
}
