// Package sqlite implements the repositories on top of database/sql and
// mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iho/saleledger/internal/usecase"
)

// ErrForeignTransaction is returned when a repository receives a transaction
// that was not started by a TxManager of this package.
var ErrForeignTransaction = errors.New("sqlite: transaction was not started by this adapter")

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	db *sql.DB
}

// NewTxManager creates a new TxManager.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// Begin starts a transaction. The connection is opened with _txlock=immediate,
// so the transaction holds the database write lock from the start and
// concurrent sales are serialized.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &Tx{tx: tx}, nil
}

// Tx wraps a database/sql transaction.
type Tx struct {
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit(_ context.Context) error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction. It is a no-op after Commit.
func (t *Tx) Rollback(_ context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}

func sqlTx(tx usecase.Transaction) (*sql.Tx, error) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, ErrForeignTransaction
	}

	return t.tx, nil
}
