// Package memory is an in-process storage backend. It honours the same
// transactional contract as the SQL adapters: per-product locks held until
// commit or rollback, and writes that become visible atomically at commit.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

// ErrForeignTransaction is returned when a repository receives a transaction
// that was not started by its store.
var ErrForeignTransaction = errors.New("memory: transaction does not belong to this store")

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("memory: transaction has already been committed or rolled back")

// Store holds all state. The zero value is not usable; call NewStore.
type Store struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
	// sales is replaced, never mutated, so readers can keep a snapshot.
	sales     []*domain.Sale
	salesByID map[string]*domain.Sale
	returns   map[string][]*domain.Sale
	audit     []*domain.AuditEntry
	outbox    []*domain.OutboxEvent

	lockMu sync.Mutex
	locks  map[string]*rowLock
}

// rowLock is a per-product mutex. Entries live only while some transaction
// holds or waits on them, so probing unknown IDs does not grow the map.
type rowLock struct {
	ch   chan struct{}
	refs int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		products:  make(map[string]*domain.Product),
		salesByID: make(map[string]*domain.Sale),
		returns:   make(map[string][]*domain.Sale),
		locks:     make(map[string]*rowLock),
	}
}

// Ping always succeeds; it lets the store act as a readiness dependency.
func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) productLock(id string) *rowLock {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = &rowLock{ch: make(chan struct{}, 1)}
		s.locks[id] = l
	}
	l.refs++

	return l
}

func (s *Store) unrefLock(id string, l *rowLock) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(s.locks, id)
	}
}

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	store *Store
}

// NewTxManager creates a new TxManager.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin starts a new transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Tx{
		store:    m.store,
		held:     make(map[string]*rowLock),
		products: make(map[string]*domain.Product),
	}, nil
}

// Tx stages writes until Commit. It is meant for a single goroutine.
type Tx struct {
	store *Store
	held  map[string]*rowLock
	// products are working copies of the locked rows.
	products map[string]*domain.Product
	sales    []*domain.Sale
	audit    []*domain.AuditEntry
	outbox   []*domain.OutboxEvent
	done     bool
}

func asTx(store *Store, tx usecase.Transaction) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != store {
		return nil, ErrForeignTransaction
	}

	if t.done {
		return nil, ErrTxDone
	}

	return t, nil
}

// lock acquires the product lock unless this transaction already holds it.
func (t *Tx) lock(ctx context.Context, id string) error {
	if _, ok := t.held[id]; ok {
		return nil
	}

	l := t.store.productLock(id)
	select {
	case l.ch <- struct{}{}:
		t.held[id] = l
		return nil
	case <-ctx.Done():
		t.store.unrefLock(id, l)
		return ctx.Err()
	}
}

// product returns the transaction's working copy of a locked product, or nil.
func (t *Tx) product(id string) *domain.Product {
	if p, ok := t.products[id]; ok {
		return p
	}

	t.store.mu.RLock()
	p, ok := t.store.products[id]
	t.store.mu.RUnlock()
	if !ok {
		return nil
	}

	cp := *p
	t.products[id] = &cp

	return &cp
}

// Commit publishes all staged writes at once and releases the locks.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}

	if err := ctx.Err(); err != nil {
		t.release()
		return err
	}

	s := t.store
	s.mu.Lock()

	for _, sale := range t.sales {
		if _, exists := s.salesByID[sale.ID]; exists {
			s.mu.Unlock()
			t.release()
			return errors.New("memory: duplicate sale id " + sale.ID)
		}
	}

	for id, p := range t.products {
		if _, ok := t.held[id]; ok {
			s.products[id] = p
		}
	}

	if len(t.sales) > 0 {
		next := make([]*domain.Sale, len(s.sales), len(s.sales)+len(t.sales))
		copy(next, s.sales)

		for _, sale := range t.sales {
			idx, _ := slices.BinarySearchFunc(next, sale, compareSales)
			next = slices.Insert(next, idx, sale)

			s.salesByID[sale.ID] = sale
			if sale.OriginalSaleID != nil {
				s.returns[*sale.OriginalSaleID] = append(s.returns[*sale.OriginalSaleID], sale)
			}
		}

		s.sales = next
	}

	s.audit = append(s.audit, t.audit...)
	s.outbox = append(s.outbox, t.outbox...)
	s.mu.Unlock()

	t.release()

	return nil
}

// Rollback discards staged writes. Calling it after Commit is a no-op.
func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}

	t.release()

	return nil
}

func (t *Tx) release() {
	for id, l := range t.held {
		<-l.ch
		t.store.unrefLock(id, l)
		delete(t.held, id)
	}

	t.done = true
	t.products = nil
	t.sales = nil
	t.audit = nil
	t.outbox = nil
}

func compareSales(a, b *domain.Sale) int {
	if c := a.CommittedAt.Compare(b.CommittedAt); c != 0 {
		return c
	}

	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}

	return 0
}

func cloneSale(s *domain.Sale) *domain.Sale {
	cp := *s
	cp.Lines = slices.Clone(s.Lines)
	cp.Installments = slices.Clone(s.Installments)
	if s.OriginalSaleID != nil {
		id := *s.OriginalSaleID
		cp.OriginalSaleID = &id
	}

	return &cp
}

func cloneProduct(p *domain.Product) *domain.Product {
	cp := *p
	return &cp
}
