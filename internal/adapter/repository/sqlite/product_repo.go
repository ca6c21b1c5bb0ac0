package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

const productColumns = `id, name, category, price, quantity, version, created_at, updated_at`

// ProductRepository implements usecase.ProductRepository.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create creates a new product.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Category, p.Price.String(), p.Quantity, p.Version,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if isConstraint(err, sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %s", domain.ErrProductExists, p.ID)
	}

	return err
}

// GetByID retrieves a product by ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}

	return p, err
}

// GetByIDsForUpdate reads the products inside tx. The transaction already
// holds the database write lock, so no row locking is needed.
func (r *ProductRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Product, error) {
	q, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []*domain.Product{}, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id IN (`+placeholders(len(ids))+`)
		ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]*domain.Product, 0, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

// AdjustQuantity applies delta with a guarded UPDATE.
func (r *ProductRepository) AdjustQuantity(ctx context.Context, tx usecase.Transaction, id string, delta int64, updatedAt time.Time) (*domain.Product, error) {
	q, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}

	p, err := scanProduct(q.QueryRowContext(ctx, `
		UPDATE products
		SET quantity = quantity + ?, version = version + 1, updated_at = ?
		WHERE id = ? AND quantity + ? >= 0
		RETURNING `+productColumns,
		delta, formatTime(updatedAt), id, delta,
	))
	if err == nil {
		return p, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var quantity int64
	if err := q.QueryRowContext(ctx, `SELECT quantity FROM products WHERE id = ?`, id).Scan(&quantity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}

		return nil, err
	}

	return nil, fmt.Errorf("%w: product %s has %d, adjustment %d", domain.ErrStockUnderflow, id, quantity, delta)
}

// UpdatePrice changes the catalog price.
func (r *ProductRepository) UpdatePrice(ctx context.Context, tx usecase.Transaction, id string, price decimal.Decimal, updatedAt time.Time) (*domain.Product, error) {
	q, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}

	p, err := scanProduct(q.QueryRowContext(ctx, `
		UPDATE products
		SET price = ?, version = version + 1, updated_at = ?
		WHERE id = ?
		RETURNING `+productColumns,
		price.String(), formatTime(updatedAt), id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}

	return p, err
}

// List lists products ordered by ID.
func (r *ProductRepository) List(ctx context.Context, limit, offset int) ([]*domain.Product, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]*domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (*domain.Product, error) {
	var (
		p                    domain.Product
		price                string
		createdAt, updatedAt string
	)

	if err := row.Scan(&p.ID, &p.Name, &p.Category, &price, &p.Quantity, &p.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	p.Price = parseDecimal(price)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)

	return &p, nil
}
