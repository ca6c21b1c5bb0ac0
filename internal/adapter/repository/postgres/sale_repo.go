package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

// selectSales reads one row per sale with lines and installments folded into
// JSON arrays, so listing is a single statement over a single snapshot.
const selectSales = `
	SELECT s.id, s.kind, s.original_sale_id, s.payment_method, s.actor, s.reason,
	       s.total, s.committed_at,
	       (SELECT COALESCE(json_agg(json_build_object(
	                   'line_no', l.line_no,
	                   'product_id', l.product_id,
	                   'product_name', l.product_name,
	                   'quantity', l.quantity,
	                   'unit_price', l.unit_price::text,
	                   'discount', l.discount::text,
	                   'subtotal', l.subtotal::text) ORDER BY l.line_no), '[]'::json)
	          FROM sale_lines l WHERE l.sale_id = s.id) AS lines,
	       (SELECT COALESCE(json_agg(json_build_object(
	                   'index', i.idx,
	                   'due_date', i.due_date,
	                   'amount', i.amount::text) ORDER BY i.idx), '[]'::json)
	          FROM sale_installments i WHERE i.sale_id = s.id) AS installments
	FROM sales s`

// SaleRepository implements usecase.SaleRepository. Sales are only ever
// inserted; the schema rejects UPDATE and DELETE on ledger tables.
type SaleRepository struct {
	db dbtx
}

// NewSaleRepository creates a new SaleRepository.
func NewSaleRepository(pool *pgxpool.Pool) *SaleRepository {
	return newSaleRepository(pool)
}

func newSaleRepository(db dbtx) *SaleRepository {
	return &SaleRepository{db: db}
}

// Create appends a sale with its lines and installments.
func (r *SaleRepository) Create(ctx context.Context, tx usecase.Transaction, sale *domain.Sale) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO sales (id, kind, original_sale_id, payment_method, actor, reason, total, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sale.ID,
		string(sale.Kind),
		sale.OriginalSaleID,
		string(sale.PaymentMethod),
		sale.Actor,
		sale.Reason,
		decimalToNumeric(sale.Total),
		timeToPgTimestamptz(sale.CommittedAt),
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}

	for _, l := range sale.Lines {
		_, err := q.Exec(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, product_id, product_name, quantity, unit_price, discount, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			sale.ID,
			l.LineNo,
			l.ProductID,
			l.ProductName,
			l.Quantity,
			decimalToNumeric(l.UnitPrice),
			decimalToNumeric(l.Discount),
			decimalToNumeric(l.Subtotal),
		)
		if err != nil {
			return fmt.Errorf("insert sale line %d: %w", l.LineNo, err)
		}
	}

	for _, inst := range sale.Installments {
		_, err := q.Exec(ctx, `
			INSERT INTO sale_installments (sale_id, idx, due_date, amount)
			VALUES ($1, $2, $3, $4)`,
			sale.ID,
			inst.Index,
			timeToPgTimestamptz(inst.DueDate),
			decimalToNumeric(inst.Amount),
		)
		if err != nil {
			return fmt.Errorf("insert installment %d: %w", inst.Index, err)
		}
	}

	return nil
}

// GetByID retrieves a sale by ID.
func (r *SaleRepository) GetByID(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(r.db.QueryRow(ctx, selectSales+` WHERE s.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSaleNotFound
		}

		return nil, err
	}

	return sale, nil
}

// List streams sales in [From, To) ordered by commit time then ID. The rows
// come from one statement, which sees one snapshot under read committed.
func (r *SaleRepository) List(ctx context.Context, rng domain.TimeRange) iter.Seq2[*domain.Sale, error] {
	return func(yield func(*domain.Sale, error) bool) {
		rows, err := r.db.Query(ctx, selectSales+`
			WHERE ($1::timestamptz IS NULL OR s.committed_at >= $1)
			  AND ($2::timestamptz IS NULL OR s.committed_at < $2)
			ORDER BY s.committed_at, s.id COLLATE "C"`,
			boundToPgTimestamptz(rng.From),
			boundToPgTimestamptz(rng.To),
		)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			sale, err := scanSale(rows)
			if err != nil {
				yield(nil, err)
				return
			}

			if !yield(sale, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// ListReturns lists the returns recorded against a sale, including ones
// inserted earlier in tx.
func (r *SaleRepository) ListReturns(ctx context.Context, tx usecase.Transaction, originalSaleID string) ([]*domain.Sale, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, selectSales+`
		WHERE s.original_sale_id = $1
		ORDER BY s.committed_at, s.id COLLATE "C"`, originalSaleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]*domain.Sale, 0)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}

	return sales, rows.Err()
}

type lineJSON struct {
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	LineNo      int             `json:"line_no"`
	Quantity    int64           `json:"quantity"`
}

type installmentJSON struct {
	DueDate time.Time       `json:"due_date"`
	Amount  decimal.Decimal `json:"amount"`
	Index   int             `json:"index"`
}

func scanSale(row pgx.Row) (*domain.Sale, error) {
	var (
		s                     domain.Sale
		kind, method          string
		total                 pgtype.Numeric
		committedAt           pgtype.Timestamptz
		linesRaw, installsRaw []byte
	)

	err := row.Scan(
		&s.ID,
		&kind,
		&s.OriginalSaleID,
		&method,
		&s.Actor,
		&s.Reason,
		&total,
		&committedAt,
		&linesRaw,
		&installsRaw,
	)
	if err != nil {
		return nil, err
	}

	s.Kind = domain.SaleKind(kind)
	s.PaymentMethod = domain.PaymentMethod(method)
	s.Total = numericToDecimal(total)
	s.CommittedAt = committedAt.Time.UTC()

	var lines []lineJSON
	if err := json.Unmarshal(linesRaw, &lines); err != nil {
		return nil, fmt.Errorf("decode lines of sale %s: %w", s.ID, err)
	}

	s.Lines = make([]domain.SaleLine, 0, len(lines))
	for _, l := range lines {
		s.Lines = append(s.Lines, domain.SaleLine{
			LineNo:      l.LineNo,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Discount:    l.Discount,
			Subtotal:    l.Subtotal,
		})
	}

	var installs []installmentJSON
	if len(installsRaw) > 0 {
		if err := json.Unmarshal(installsRaw, &installs); err != nil {
			return nil, fmt.Errorf("decode installments of sale %s: %w", s.ID, err)
		}
	}

	for _, inst := range installs {
		s.Installments = append(s.Installments, domain.Installment{
			Index:   inst.Index,
			DueDate: inst.DueDate.UTC(),
			Amount:  inst.Amount,
		})
	}

	return &s, nil
}
