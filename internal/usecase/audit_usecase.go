package usecase

import (
	"context"
	"fmt"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/infrastructure/metrics"
)

// AuditUseCase records and queries the audit log.
type AuditUseCase struct {
	auditRepo AuditRepository
	idGen     IDGenerator
	clock     Clock
	metrics   *metrics.Metrics
}

// NewAuditUseCase creates a new AuditUseCase.
func NewAuditUseCase(auditRepo AuditRepository, idGen IDGenerator, metrics *metrics.Metrics) *AuditUseCase {
	return &AuditUseCase{
		auditRepo: auditRepo,
		idGen:     idGen,
		clock:     SystemClock{},
		metrics:   metrics,
	}
}

// RecordInput represents a free-standing audit entry.
type RecordInput struct {
	Detail      domain.JSON
	Actor       string
	Action      string
	SubjectType string
	SubjectID   string
}

// Record appends an entry to the audit log outside of any transaction.
func (uc *AuditUseCase) Record(ctx context.Context, input RecordInput) (*domain.AuditEntry, error) {
	actor, err := actorOrContext(ctx, input.Actor)
	if err != nil {
		return nil, err
	}

	if input.Action == "" {
		return nil, fmt.Errorf("%w: action is required", domain.ErrInvalidAuditEntry)
	}

	entry := &domain.AuditEntry{
		ID:          uc.idGen.Generate(),
		Actor:       actor,
		Action:      input.Action,
		SubjectType: input.SubjectType,
		SubjectID:   input.SubjectID,
		RequestID:   domain.RequestIDFromContext(ctx),
		Detail:      input.Detail,
		Status:      string(domain.AuditStatusSuccess),
		CreatedAt:   uc.clock.Now().UTC(),
	}

	if err := uc.auditRepo.Create(ctx, entry); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.AuditEntriesCreated.WithLabelValues(entry.Action, entry.Status).Inc()
	}

	return entry, nil
}

// List returns audit entries matching filter, newest first.
func (uc *AuditUseCase) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	if err := filter.Range.Validate(); err != nil {
		return nil, err
	}

	limit, offset, err := domain.ValidatePagination(filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	filter.Limit, filter.Offset = limit, offset

	return uc.auditRepo.List(ctx, filter)
}
