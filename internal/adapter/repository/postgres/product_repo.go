package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

const productColumns = `id, name, category, price, quantity, version, created_at, updated_at`

// ProductRepository implements usecase.ProductRepository.
type ProductRepository struct {
	db dbtx
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return newProductRepository(pool)
}

func newProductRepository(db dbtx) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create creates a new product.
func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		product.ID,
		product.Name,
		product.Category,
		decimalToNumeric(product.Price),
		product.Quantity,
		product.Version,
		timeToPgTimestamptz(product.CreatedAt),
		timeToPgTimestamptz(product.UpdatedAt),
	)
	if isPgError(err, pgErrUniqueViolation) {
		return fmt.Errorf("%w: %s", domain.ErrProductExists, product.ID)
	}

	return err
}

// GetByID retrieves a product by ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}

		return nil, err
	}

	return p, nil
}

// GetByIDsForUpdate locks the products with FOR UPDATE. Rows are locked in
// byte order of their IDs, the same order callers sort them in.
func (r *ProductRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Product, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id COLLATE "C"
		FOR UPDATE`, ids)
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

// AdjustQuantity applies delta in a single guarded UPDATE so the quantity can
// never go negative, even without a prior lock.
func (r *ProductRepository) AdjustQuantity(ctx context.Context, tx usecase.Transaction, id string, delta int64, updatedAt time.Time) (*domain.Product, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `
		UPDATE products
		SET quantity = quantity + $2, version = version + 1, updated_at = $3
		WHERE id = $1 AND quantity + $2 >= 0
		RETURNING `+productColumns,
		id, delta, timeToPgTimestamptz(updatedAt),
	)

	p, err := scanProduct(row)
	switch {
	case err == nil:
		return p, nil
	case isPgError(err, pgErrCheckViolation):
		return nil, fmt.Errorf("%w: product %s, adjustment %d", domain.ErrStockUnderflow, id, delta)
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, err
	}

	// No row matched: tell a missing product from a refused adjustment.
	var quantity int64
	if err := q.QueryRow(ctx, `SELECT quantity FROM products WHERE id = $1`, id).Scan(&quantity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}

		return nil, err
	}

	return nil, fmt.Errorf("%w: product %s has %d, adjustment %d", domain.ErrStockUnderflow, id, quantity, delta)
}

// UpdatePrice changes the catalog price.
func (r *ProductRepository) UpdatePrice(ctx context.Context, tx usecase.Transaction, id string, price decimal.Decimal, updatedAt time.Time) (*domain.Product, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `
		UPDATE products
		SET price = $2, version = version + 1, updated_at = $3
		WHERE id = $1
		RETURNING `+productColumns,
		id, decimalToNumeric(price), timeToPgTimestamptz(updatedAt),
	)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}

		return nil, err
	}

	return p, nil
}

// List lists products ordered by ID.
func (r *ProductRepository) List(ctx context.Context, limit, offset int) ([]*domain.Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY id COLLATE "C"
		LIMIT $1 OFFSET $2`, limit, offset)
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

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p                    domain.Product
		price                pgtype.Numeric
		createdAt, updatedAt pgtype.Timestamptz
	)

	if err := row.Scan(&p.ID, &p.Name, &p.Category, &price, &p.Quantity, &p.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	p.Price = numericToDecimal(price)
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time

	return &p, nil
}
