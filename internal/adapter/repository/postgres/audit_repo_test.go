package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/iho/saleledger/internal/domain"
)

func TestAuditRepositoryCreateAssignsID(t *testing.T) {
	pool := newMockPool(t)
	pool.ExpectExec("INSERT INTO audit_entries").
		WithArgs(pgxmock.AnyArg(), "u1", "sale.commit", "sale", "S1", "req-1",
			[]byte(nil), []byte(`{"total":"10"}`), "success", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := newAuditRepository(pool)
	entry := &domain.AuditEntry{
		Actor:       "u1",
		Action:      "sale.commit",
		SubjectType: "sale",
		SubjectID:   "S1",
		RequestID:   "req-1",
		Detail:      domain.JSON{"total": "10"},
		Status:      "success",
		CreatedAt:   time.Now(),
	}

	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if entry.ID == "" {
		t.Error("expected an ID to be assigned")
	}

	assertExpectations(t, pool)
}

func TestAuditRepositoryListBuildsFilter(t *testing.T) {
	pool := newMockPool(t)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	created := timeToPgTimestamptz(from.Add(time.Hour))

	pool.ExpectQuery(`actor = \$1 AND subject_id = \$2 AND created_at >= \$3 ORDER BY created_at DESC, id DESC LIMIT \$4 OFFSET \$5`).
		WithArgs("u1", "P1", timeToPgTimestamptz(from), 10, 20).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "actor", "action", "subject_type", "subject_id",
			"request_id", "before_state", "detail", "status", "created_at",
		}).AddRow("a1", "u1", "product.price_update", "product", "P1", "",
			[]byte(`{"Price":"10"}`), []byte(`{"Price":"12"}`), "success", created))

	repo := newAuditRepository(pool)
	entries, err := repo.List(context.Background(), domain.AuditFilter{
		Actor:     "u1",
		SubjectID: "P1",
		Range:     domain.TimeRange{From: from},
		Limit:     10,
		Offset:    20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	if entries[0].Before["Price"] != "10" || entries[0].Detail["Price"] != "12" {
		t.Errorf("unexpected states: %+v", entries[0])
	}

	assertExpectations(t, pool)
}
