package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

// ProductRepository implements usecase.ProductRepository.
type ProductRepository struct {
	store *Store
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{store: store}
}

// Create inserts a product.
func (r *ProductRepository) Create(_ context.Context, product *domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.products[product.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrProductExists, product.ID)
	}

	r.store.products[product.ID] = cloneProduct(product)

	return nil
}

// GetByID retrieves the committed state of a product.
func (r *ProductRepository) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}

	return cloneProduct(p), nil
}

// GetByIDsForUpdate locks the products in the given order. Callers pass
// sorted IDs so that two transactions never wait on each other in a cycle.
func (r *ProductRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Product, error) {
	t, err := asTx(r.store, tx)
	if err != nil {
		return nil, err
	}

	products := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		if err := t.lock(ctx, id); err != nil {
			return nil, err
		}

		if p := t.product(id); p != nil {
			products = append(products, cloneProduct(p))
		}
	}

	return products, nil
}

// AdjustQuantity adds delta to the staged quantity of a locked product.
func (r *ProductRepository) AdjustQuantity(ctx context.Context, tx usecase.Transaction, id string, delta int64, updatedAt time.Time) (*domain.Product, error) {
	t, err := asTx(r.store, tx)
	if err != nil {
		return nil, err
	}

	if err := t.lock(ctx, id); err != nil {
		return nil, err
	}

	p := t.product(id)
	if p == nil {
		return nil, domain.ErrProductNotFound
	}

	if err := p.ValidateAdjust(delta); err != nil {
		return nil, err
	}

	p.Quantity = p.ApplyAdjust(delta)
	p.Version++
	p.UpdatedAt = updatedAt

	return cloneProduct(p), nil
}

// UpdatePrice stages a price change of a locked product.
func (r *ProductRepository) UpdatePrice(ctx context.Context, tx usecase.Transaction, id string, price decimal.Decimal, updatedAt time.Time) (*domain.Product, error) {
	t, err := asTx(r.store, tx)
	if err != nil {
		return nil, err
	}

	if err := t.lock(ctx, id); err != nil {
		return nil, err
	}

	p := t.product(id)
	if p == nil {
		return nil, domain.ErrProductNotFound
	}

	p.Price = price
	p.Version++
	p.UpdatedAt = updatedAt

	return cloneProduct(p), nil
}

// List returns products ordered by ID.
func (r *ProductRepository) List(_ context.Context, limit, offset int) ([]*domain.Product, error) {
	r.store.mu.RLock()
	ids := make([]string, 0, len(r.store.products))
	for id := range r.store.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		r.store.mu.RUnlock()
		return []*domain.Product{}, nil
	}

	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	products := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		products = append(products, cloneProduct(r.store.products[id]))
	}
	r.store.mu.RUnlock()

	return products, nil
}
