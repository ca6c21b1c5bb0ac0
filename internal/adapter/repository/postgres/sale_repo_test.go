package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"

	"github.com/iho/saleledger/internal/domain"
)

var saleCols = []string{
	"id", "kind", "original_sale_id", "payment_method", "actor", "reason",
	"total", "committed_at", "lines", "installments",
}

func TestSaleRepositoryCreate(t *testing.T) {
	pool := newMockPool(t)
	tx := beginTx(t, pool)

	committed := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	sale := &domain.Sale{
		ID:            "S1",
		Kind:          domain.SaleKindSale,
		PaymentMethod: domain.PaymentMethodCard,
		Actor:         "u1",
		Total:         decimal.RequireFromString("30"),
		CommittedAt:   committed,
		Lines: []domain.SaleLine{
			{LineNo: 1, ProductID: "A", ProductName: "Apple", Quantity: 3, UnitPrice: decimal.RequireFromString("10"), Subtotal: decimal.RequireFromString("30")},
		},
		Installments: []domain.Installment{
			{Index: 1, DueDate: committed, Amount: decimal.RequireFromString("15")},
			{Index: 2, DueDate: committed.AddDate(0, 1, 0), Amount: decimal.RequireFromString("15")},
		},
	}

	pool.ExpectExec("INSERT INTO sales").
		WithArgs("S1", "sale", (*string)(nil), "card", "u1", "", pgxmock.AnyArg(), timeToPgTimestamptz(committed)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec("INSERT INTO sale_lines").
		WithArgs("S1", 1, "A", "Apple", int64(3), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec("INSERT INTO sale_installments").
		WithArgs("S1", 1, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec("INSERT INTO sale_installments").
		WithArgs("S1", 2, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := newSaleRepository(pool)
	if err := repo.Create(context.Background(), tx, sale); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertExpectations(t, pool)
}

func TestSaleRepositoryGetByID(t *testing.T) {
	pool := newMockPool(t)

	committed := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	lines := []byte(`[{"line_no":1,"product_id":"A","product_name":"Apple","quantity":2,"unit_price":"10.0000","discount":"1.5000","subtotal":"18.5000"}]`)

	pool.ExpectQuery("FROM sales s WHERE s.id = \\$1").
		WithArgs("S1").
		WillReturnRows(pgxmock.NewRows(saleCols).AddRow(
			"S1", "sale", nil, "cash", "u1", "",
			decimalToNumeric(decimal.RequireFromString("18.5")), timeToPgTimestamptz(committed),
			lines, []byte(`[]`),
		))
	pool.ExpectQuery("FROM sales s WHERE s.id = \\$1").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	repo := newSaleRepository(pool)

	sale, err := repo.GetByID(context.Background(), "S1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sale.Validate(); err != nil {
		t.Fatalf("decoded sale does not validate: %v", err)
	}

	if len(sale.Lines) != 1 || !sale.Lines[0].UnitPrice.Equal(decimal.RequireFromString("10")) {
		t.Errorf("unexpected lines: %+v", sale.Lines)
	}

	if !sale.Lines[0].Discount.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("expected the line discount to survive decoding, got %s", sale.Lines[0].Discount)
	}

	if !sale.CommittedAt.Equal(committed) {
		t.Errorf("expected committed_at %v, got %v", committed, sale.CommittedAt)
	}

	if _, err := repo.GetByID(context.Background(), "nope"); !errors.Is(err, domain.ErrSaleNotFound) {
		t.Fatalf("expected ErrSaleNotFound, got %v", err)
	}

	assertExpectations(t, pool)
}

func TestSaleRepositoryListStreamsInOrder(t *testing.T) {
	pool := newMockPool(t)

	t0 := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	rng := domain.DayRange(t0, time.UTC)

	rows := pgxmock.NewRows(saleCols)
	for i, id := range []string{"S1", "S2", "S3"} {
		rows.AddRow(id, "sale", nil, "cash", "u1", "",
			decimalToNumeric(decimal.Zero), timeToPgTimestamptz(t0.Add(time.Duration(i)*time.Minute)),
			[]byte(`[]`), []byte(`[]`))
	}

	pool.ExpectQuery("ORDER BY s.committed_at").
		WithArgs(boundToPgTimestamptz(rng.From), boundToPgTimestamptz(rng.To)).
		WillReturnRows(rows)

	repo := newSaleRepository(pool)

	var ids []string
	for sale, err := range repo.List(context.Background(), rng) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, sale.ID)
		if len(ids) == 2 {
			break
		}
	}

	if len(ids) != 2 || ids[0] != "S1" || ids[1] != "S2" {
		t.Errorf("unexpected ids: %v", ids)
	}

	assertExpectations(t, pool)
}

func TestSaleRepositoryListOpenBoundsAreNull(t *testing.T) {
	pool := newMockPool(t)
	pool.ExpectQuery("ORDER BY s.committed_at").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("boom"))

	repo := newSaleRepository(pool)

	var got error
	for _, err := range repo.List(context.Background(), domain.AllTime()) {
		got = err
	}

	if got == nil || got.Error() != "boom" {
		t.Fatalf("expected query error, got %v", got)
	}

	if b := boundToPgTimestamptz(time.Time{}); b.Valid {
		t.Errorf("expected zero bound to map to NULL")
	}

	assertExpectations(t, pool)
}
