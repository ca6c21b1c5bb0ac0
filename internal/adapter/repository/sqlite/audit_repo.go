package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

// AuditRepository implements usecase.AuditRepository.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts an entry outside of any transaction.
func (r *AuditRepository) Create(ctx context.Context, entry *domain.AuditEntry) error {
	return insertEntry(ctx, r.db, entry)
}

// CreateTx inserts an entry as part of tx.
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, entry *domain.AuditEntry) error {
	q, err := sqlTx(tx)
	if err != nil {
		return err
	}

	return insertEntry(ctx, q, entry)
}

func insertEntry(ctx context.Context, db dbtx, entry *domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	before, err := jsonColumn(entry.Before)
	if err != nil {
		return err
	}

	detail, err := jsonColumn(entry.Detail)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, actor, action, subject_type, subject_id,
			request_id, before_state, detail, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Actor, entry.Action, entry.SubjectType, entry.SubjectID,
		entry.RequestID, before, detail, entry.Status, formatTime(entry.CreatedAt),
	)

	return err
}

func jsonColumn(doc domain.JSON) (sql.NullString, error) {
	if doc == nil {
		return sql.NullString{}, nil
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return sql.NullString{}, err
	}

	return sql.NullString{String: string(b), Valid: true}, nil
}

// List retrieves entries matching filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	var (
		conds []string
		args  []any
	)

	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if filter.Actor != "" {
		add("actor = ?", filter.Actor)
	}
	if filter.Action != "" {
		add("action = ?", filter.Action)
	}
	if filter.SubjectType != "" {
		add("subject_type = ?", filter.SubjectType)
	}
	if filter.SubjectID != "" {
		add("subject_id = ?", filter.SubjectID)
	}
	if !filter.Range.From.IsZero() {
		add("created_at >= ?", formatTime(filter.Range.From))
	}
	if !filter.Range.To.IsZero() {
		add("created_at < ?", formatTime(filter.Range.To))
	}

	query := `
		SELECT id, actor, action, subject_type, subject_id,
		       request_id, before_state, detail, status, created_at
		FROM audit_entries`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*domain.AuditEntry, 0)
	for rows.Next() {
		var (
			e              domain.AuditEntry
			before, detail sql.NullString
			createdAt      string
		)

		err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.SubjectType, &e.SubjectID,
			&e.RequestID, &before, &detail, &e.Status, &createdAt)
		if err != nil {
			return nil, err
		}

		if before.Valid {
			_ = json.Unmarshal([]byte(before.String), &e.Before)
		}
		if detail.Valid {
			_ = json.Unmarshal([]byte(detail.String), &e.Detail)
		}
		e.CreatedAt = parseTime(createdAt)

		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
