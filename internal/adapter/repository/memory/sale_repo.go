package memory

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

// SaleRepository implements usecase.SaleRepository. It has no way to change
// or remove a sale once committed.
type SaleRepository struct {
	store *Store
}

// NewSaleRepository creates a new SaleRepository.
func NewSaleRepository(store *Store) *SaleRepository {
	return &SaleRepository{store: store}
}

// Create stages a sale; it becomes visible when tx commits.
func (r *SaleRepository) Create(_ context.Context, tx usecase.Transaction, sale *domain.Sale) error {
	t, err := asTx(r.store, tx)
	if err != nil {
		return err
	}

	for _, staged := range t.sales {
		if staged.ID == sale.ID {
			return fmt.Errorf("memory: duplicate sale id %s", sale.ID)
		}
	}

	t.sales = append(t.sales, cloneSale(sale))

	return nil
}

// GetByID retrieves a committed sale.
func (r *SaleRepository) GetByID(_ context.Context, id string) (*domain.Sale, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	s, ok := r.store.salesByID[id]
	if !ok {
		return nil, domain.ErrSaleNotFound
	}

	return cloneSale(s), nil
}

// List yields committed sales inside rng in (CommittedAt, ID) order. The
// ledger slice is captured when iteration starts, so commits that land while
// a caller is iterating are not observed.
func (r *SaleRepository) List(ctx context.Context, rng domain.TimeRange) iter.Seq2[*domain.Sale, error] {
	return func(yield func(*domain.Sale, error) bool) {
		r.store.mu.RLock()
		snapshot := r.store.sales
		r.store.mu.RUnlock()

		start := 0
		if !rng.From.IsZero() {
			start, _ = slices.BinarySearchFunc(snapshot, rng.From, func(s *domain.Sale, from time.Time) int {
				return s.CommittedAt.Compare(from)
			})
		}

		for _, s := range snapshot[start:] {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			if !rng.To.IsZero() && !s.CommittedAt.Before(rng.To) {
				return
			}

			if !yield(cloneSale(s), nil) {
				return
			}
		}
	}
}

// ListReturns returns the committed returns of a sale plus any staged in tx.
func (r *SaleRepository) ListReturns(_ context.Context, tx usecase.Transaction, originalSaleID string) ([]*domain.Sale, error) {
	t, err := asTx(r.store, tx)
	if err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	committed := r.store.returns[originalSaleID]
	out := make([]*domain.Sale, 0, len(committed))
	for _, s := range committed {
		out = append(out, cloneSale(s))
	}
	r.store.mu.RUnlock()

	for _, s := range t.sales {
		if s.OriginalSaleID != nil && *s.OriginalSaleID == originalSaleID {
			out = append(out, cloneSale(s))
		}
	}

	return out, nil
}
