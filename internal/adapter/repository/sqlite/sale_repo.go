package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

const selectSales = `
	SELECT s.id, s.kind, s.original_sale_id, s.payment_method, s.actor, s.reason,
	       s.total, s.committed_at,
	       (SELECT COALESCE(json_group_array(json_object(
	                   'line_no', l.line_no,
	                   'product_id', l.product_id,
	                   'product_name', l.product_name,
	                   'quantity', l.quantity,
	                   'unit_price', l.unit_price,
	                   'discount', l.discount,
	                   'subtotal', l.subtotal)), '[]')
	          FROM (SELECT * FROM sale_lines WHERE sale_id = s.id ORDER BY line_no) l) AS lines,
	       (SELECT COALESCE(json_group_array(json_object(
	                   'index', i.idx,
	                   'due_date', i.due_date,
	                   'amount', i.amount)), '[]')
	          FROM (SELECT * FROM sale_installments WHERE sale_id = s.id ORDER BY idx) i) AS installments
	FROM sales s`

// SaleRepository implements usecase.SaleRepository.
type SaleRepository struct {
	db *sql.DB
}

// NewSaleRepository creates a new SaleRepository.
func NewSaleRepository(db *sql.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

// Create appends a sale with its lines and installments.
func (r *SaleRepository) Create(ctx context.Context, tx usecase.Transaction, sale *domain.Sale) error {
	q, err := sqlTx(tx)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO sales (id, kind, original_sale_id, payment_method, actor, reason, total, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID,
		string(sale.Kind),
		sale.OriginalSaleID,
		string(sale.PaymentMethod),
		sale.Actor,
		sale.Reason,
		sale.Total.String(),
		formatTime(sale.CommittedAt),
	)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}

	for _, l := range sale.Lines {
		_, err := q.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, line_no, product_id, product_name, quantity, unit_price, discount, subtotal)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sale.ID, l.LineNo, l.ProductID, l.ProductName, l.Quantity,
			l.UnitPrice.String(), l.Discount.String(), l.Subtotal.String(),
		)
		if err != nil {
			return fmt.Errorf("insert sale line %d: %w", l.LineNo, err)
		}
	}

	for _, inst := range sale.Installments {
		_, err := q.ExecContext(ctx, `
			INSERT INTO sale_installments (sale_id, idx, due_date, amount)
			VALUES (?, ?, ?, ?)`,
			sale.ID, inst.Index, formatTime(inst.DueDate), inst.Amount.String(),
		)
		if err != nil {
			return fmt.Errorf("insert installment %d: %w", inst.Index, err)
		}
	}

	return nil
}

// GetByID retrieves a sale by ID.
func (r *SaleRepository) GetByID(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(r.db.QueryRowContext(ctx, selectSales+` WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSaleNotFound
	}

	return sale, err
}

// List streams sales in [From, To) ordered by commit time then ID. The open
// read transaction of the statement pins one WAL snapshot for the whole scan.
func (r *SaleRepository) List(ctx context.Context, rng domain.TimeRange) iter.Seq2[*domain.Sale, error] {
	return func(yield func(*domain.Sale, error) bool) {
		var from, to sql.NullString
		if !rng.From.IsZero() {
			from = sql.NullString{String: formatTime(rng.From), Valid: true}
		}
		if !rng.To.IsZero() {
			to = sql.NullString{String: formatTime(rng.To), Valid: true}
		}

		rows, err := r.db.QueryContext(ctx, selectSales+`
			WHERE (?1 IS NULL OR s.committed_at >= ?1)
			  AND (?2 IS NULL OR s.committed_at < ?2)
			ORDER BY s.committed_at, s.id`, from, to)
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

// ListReturns lists the returns recorded against a sale.
func (r *SaleRepository) ListReturns(ctx context.Context, tx usecase.Transaction, originalSaleID string) ([]*domain.Sale, error) {
	q, err := sqlTx(tx)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, selectSales+`
		WHERE s.original_sale_id = ?
		ORDER BY s.committed_at, s.id`, originalSaleID)
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
	UnitPrice   string `json:"unit_price"`
	Discount    string `json:"discount"`
	Subtotal    string `json:"subtotal"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	LineNo      int    `json:"line_no"`
	Quantity    int64  `json:"quantity"`
}

type installmentJSON struct {
	DueDate string `json:"due_date"`
	Amount  string `json:"amount"`
	Index   int    `json:"index"`
}

func scanSale(row scanner) (*domain.Sale, error) {
	var (
		s                     domain.Sale
		kind, method          string
		original              sql.NullString
		total, committedAt    string
		linesRaw, installsRaw string
	)

	err := row.Scan(&s.ID, &kind, &original, &method, &s.Actor, &s.Reason, &total, &committedAt, &linesRaw, &installsRaw)
	if err != nil {
		return nil, err
	}

	s.Kind = domain.SaleKind(kind)
	s.PaymentMethod = domain.PaymentMethod(method)
	s.Total = parseDecimal(total)
	s.CommittedAt = parseTime(committedAt)
	if original.Valid {
		id := original.String
		s.OriginalSaleID = &id
	}

	var lines []lineJSON
	if err := json.Unmarshal([]byte(linesRaw), &lines); err != nil {
		return nil, fmt.Errorf("decode lines of sale %s: %w", s.ID, err)
	}

	s.Lines = make([]domain.SaleLine, 0, len(lines))
	for _, l := range lines {
		s.Lines = append(s.Lines, domain.SaleLine{
			LineNo:      l.LineNo,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   parseDecimal(l.UnitPrice),
			Discount:    parseDecimal(l.Discount),
			Subtotal:    parseDecimal(l.Subtotal),
		})
	}

	var installs []installmentJSON
	if err := json.Unmarshal([]byte(installsRaw), &installs); err != nil {
		return nil, fmt.Errorf("decode installments of sale %s: %w", s.ID, err)
	}

	for _, inst := range installs {
		s.Installments = append(s.Installments, domain.Installment{
			Index:   inst.Index,
			DueDate: parseTime(inst.DueDate),
			Amount:  parseDecimal(inst.Amount),
		})
	}

	return &s, nil
}
