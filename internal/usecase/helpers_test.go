package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/saleledger/internal/adapter/repository/memory"
	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

type seqIDGen struct {
	n atomic.Int64
}

func (g *seqIDGen) Generate() string {
	return fmt.Sprintf("id-%06d", g.n.Add(1))
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store    *memory.Store
	products *memory.ProductRepository
	sales    *memory.SaleRepository
	audit    *memory.AuditRepository
	outbox   *memory.OutboxRepository
	clock    *testClock
	sale     *usecase.SaleUseCase
	catalog  *usecase.CatalogUseCase
	report   *usecase.ReportUseCase
}

var day = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, reportOpts ...usecase.ReportOption) *harness {
	t.Helper()

	store := memory.NewStore()
	h := &harness{
		store:    store,
		products: memory.NewProductRepository(store),
		sales:    memory.NewSaleRepository(store),
		audit:    memory.NewAuditRepository(store),
		outbox:   memory.NewOutboxRepository(store),
		clock:    newTestClock(day),
	}

	txm := memory.NewTxManager(store)
	idGen := &seqIDGen{}

	h.sale = usecase.NewSaleUseCase(txm, h.products, h.sales, h.outbox, h.audit, idGen, nil, nil,
		usecase.WithSaleClock(h.clock))
	h.catalog = usecase.NewCatalogUseCase(txm, h.products, h.outbox, h.audit, idGen, nil,
		usecase.WithCatalogClock(h.clock))
	h.report = usecase.NewReportUseCase(h.sales, nil,
		append([]usecase.ReportOption{usecase.WithReportClock(h.clock)}, reportOpts...)...)

	return h
}

func (h *harness) seed(t *testing.T, id, price string, qty int64) {
	t.Helper()

	err := h.products.Create(context.Background(), &domain.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func (h *harness) quantity(t *testing.T, id string) int64 {
	t.Helper()

	p, err := h.products.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}

	return p.Quantity
}

func (h *harness) ledgerSize(t *testing.T) int {
	t.Helper()

	n := 0
	for _, err := range h.sales.List(context.Background(), domain.AllTime()) {
		if err != nil {
			t.Fatalf("list sales: %v", err)
		}
		n++
	}

	return n
}

func buy(lines ...usecase.LineRequest) usecase.CommitSaleInput {
	return usecase.CommitSaleInput{
		Lines:         lines,
		PaymentMethod: domain.PaymentMethodCash,
		Actor:         "u1",
	}
}

func line(productID string, qty int64) usecase.LineRequest {
	return usecase.LineRequest{ProductID: productID, Quantity: qty}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
