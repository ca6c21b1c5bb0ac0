package memory

import (
	"context"
	"maps"
	"sort"

	"github.com/google/uuid"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

// AuditRepository implements usecase.AuditRepository.
type AuditRepository struct {
	store *Store
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(store *Store) *AuditRepository {
	return &AuditRepository{store: store}
}

// Create appends an entry immediately.
func (r *AuditRepository) Create(_ context.Context, entry *domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	r.store.mu.Lock()
	r.store.audit = append(r.store.audit, cloneEntry(entry))
	r.store.mu.Unlock()

	return nil
}

// CreateTx stages an entry that is appended when tx commits.
func (r *AuditRepository) CreateTx(_ context.Context, tx usecase.Transaction, entry *domain.AuditEntry) error {
	t, err := asTx(r.store, tx)
	if err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	t.audit = append(t.audit, cloneEntry(entry))

	return nil
}

// List returns matching entries, newest first.
func (r *AuditRepository) List(_ context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	r.store.mu.RLock()
	matched := make([]*domain.AuditEntry, 0)
	for _, e := range r.store.audit {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	r.store.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []*domain.AuditEntry{}, nil
	}
	matched = matched[filter.Offset:]

	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	out := make([]*domain.AuditEntry, 0, len(matched))
	for _, e := range matched {
		out = append(out, cloneEntry(e))
	}

	return out, nil
}

func cloneEntry(e *domain.AuditEntry) *domain.AuditEntry {
	cp := *e
	cp.Before = maps.Clone(e.Before)
	cp.Detail = maps.Clone(e.Detail)

	return &cp
}
