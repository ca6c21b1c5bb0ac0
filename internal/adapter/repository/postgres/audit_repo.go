package postgres

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

const insertAuditEntry = `
	INSERT INTO audit_entries (
		id, actor, action, subject_type, subject_id,
		request_id, before_state, detail, status, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// AuditRepository implements audit log persistence
type AuditRepository struct {
	db dbtx
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return newAuditRepository(pool)
}

func newAuditRepository(db dbtx) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a new audit entry outside of any transaction.
func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditEntry) error {
	return insertEntry(ctx, r.db, entry)
}

// CreateTx inserts a new audit entry as part of tx.
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, entry *domain.AuditEntry) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	return insertEntry(ctx, q, entry)
}

func insertEntry(ctx context.Context, db dbtx, entry *domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	var beforeJSON, detailJSON []byte
	var err error

	if entry.Before != nil {
		beforeJSON, err = json.Marshal(entry.Before)
		if err != nil {
			return err
		}
	}

	if entry.Detail != nil {
		detailJSON, err = json.Marshal(entry.Detail)
		if err != nil {
			return err
		}
	}

	_, err = db.Exec(ctx, insertAuditEntry,
		entry.ID,
		entry.Actor,
		entry.Action,
		entry.SubjectType,
		entry.SubjectID,
		entry.RequestID,
		beforeJSON,
		detailJSON,
		entry.Status,
		timeToPgTimestamptz(entry.CreatedAt),
	)

	return err
}

// List retrieves audit entries with filtering, newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	var (
		sb   strings.Builder
		args []any
	)

	sb.WriteString(`
		SELECT id, actor, action, subject_type, subject_id,
		       request_id, before_state, detail, status, created_at
		FROM audit_entries
		WHERE 1=1`)

	where := func(clause string, arg any) {
		args = append(args, arg)
		sb.WriteString(" AND " + clause + " $" + strconv.Itoa(len(args)))
	}

	if filter.Actor != "" {
		where("actor =", filter.Actor)
	}
	if filter.Action != "" {
		where("action =", filter.Action)
	}
	if filter.SubjectType != "" {
		where("subject_type =", filter.SubjectType)
	}
	if filter.SubjectID != "" {
		where("subject_id =", filter.SubjectID)
	}
	if !filter.Range.From.IsZero() {
		where("created_at >=", timeToPgTimestamptz(filter.Range.From))
	}
	if !filter.Range.To.IsZero() {
		where("created_at <", timeToPgTimestamptz(filter.Range.To))
	}

	sb.WriteString(" ORDER BY created_at DESC, id DESC")

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		sb.WriteString(" OFFSET $" + strconv.Itoa(len(args)))
	}

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*domain.AuditEntry, 0)
	for rows.Next() {
		var (
			e                      domain.AuditEntry
			beforeJSON, detailJSON []byte
			createdAt              pgtype.Timestamptz
		)

		err := rows.Scan(
			&e.ID,
			&e.Actor,
			&e.Action,
			&e.SubjectType,
			&e.SubjectID,
			&e.RequestID,
			&beforeJSON,
			&detailJSON,
			&e.Status,
			&createdAt,
		)
		if err != nil {
			return nil, err
		}

		if beforeJSON != nil {
			_ = json.Unmarshal(beforeJSON, &e.Before)
		}

		if detailJSON != nil {
			_ = json.Unmarshal(detailJSON, &e.Detail)
		}

		e.CreatedAt = createdAt.Time.UTC()
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
