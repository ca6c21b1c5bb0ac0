package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/infrastructure/logger"
	"github.com/iho/saleledger/internal/infrastructure/metrics"
)

// CatalogUseCase handles the catalog admin surface. Stock changes go through
// ProductRepository.AdjustQuantity like sales do, so they take the same locks.
type CatalogUseCase struct {
	txManager   TransactionManager
	productRepo ProductRepository
	outboxRepo  OutboxRepository
	auditRepo   AuditRepository
	idGen       IDGenerator
	metrics     *metrics.Metrics
	clock       Clock
	logger      zerolog.Logger
}

// CatalogOption customises a CatalogUseCase.
type CatalogOption func(*CatalogUseCase)

// WithCatalogClock overrides the timestamp source.
func WithCatalogClock(c Clock) CatalogOption {
	return func(uc *CatalogUseCase) { uc.clock = c }
}

// WithCatalogLogger sets the logger.
func WithCatalogLogger(l zerolog.Logger) CatalogOption {
	return func(uc *CatalogUseCase) { uc.logger = l }
}

// NewCatalogUseCase creates a new CatalogUseCase.
func NewCatalogUseCase(
	txManager TransactionManager,
	productRepo ProductRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	metrics *metrics.Metrics,
	opts ...CatalogOption,
) *CatalogUseCase {
	uc := &CatalogUseCase{
		txManager:   txManager,
		productRepo: productRepo,
		outboxRepo:  outboxRepo,
		auditRepo:   auditRepo,
		idGen:       idGen,
		metrics:     metrics,
		clock:       SystemClock{},
		logger:      zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// CreateProductInput represents input for creating a product. ID is optional;
// a ULID is assigned when it is empty.
type CreateProductInput struct {
	ID       string
	Name     string
	Category string
	Actor    string
	Price    decimal.Decimal
	Quantity int64
}

// UpdatePriceInput represents input for changing a catalog price.
type UpdatePriceInput struct {
	ProductID string
	Actor     string
	Price     decimal.Decimal
}

// AdjustStockInput represents a restock (positive delta) or shrinkage
// (negative delta) outside of a sale.
type AdjustStockInput struct {
	ProductID string
	Actor     string
	Reason    string
	Delta     int64
}

// ListProductsInput represents input for listing products.
type ListProductsInput struct {
	Limit  int
	Offset int
}

// CreateProduct adds a product to the catalog.
func (uc *CatalogUseCase) CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	actor, err := actorOrContext(ctx, input.Actor)
	if err != nil {
		return nil, err
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uc.idGen.Generate()
	}
	if err := domain.ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidProduct, err)
	}

	now := uc.clock.Now().UTC()
	product := &domain.Product{
		ID:        id,
		Name:      strings.TrimSpace(input.Name),
		Category:  strings.TrimSpace(input.Category),
		Price:     input.Price,
		Quantity:  input.Quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := product.Validate(); err != nil {
		return nil, wrapInvalidProduct(err)
	}

	if err := uc.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}

	uc.audit(ctx, &domain.AuditEntry{
		Actor:       actor,
		Action:      string(domain.AuditActionProductCreate),
		SubjectType: domain.SubjectTypeProduct,
		SubjectID:   product.ID,
		Detail:      domain.MarshalState(product),
		Status:      string(domain.AuditStatusSuccess),
		CreatedAt:   now,
	})

	return product, nil
}

// MaxBatchProducts bounds a single catalog import.
const MaxBatchProducts = 500

// BatchRowError is a rejected row of a catalog import. Row is 1-based.
type BatchRowError struct {
	Err       error
	ProductID string
	Row       int
}

// BatchCreateResult reports which rows of an import were created.
type BatchCreateResult struct {
	Created []*domain.Product
	Failed  []BatchRowError
}

// BatchCreateProducts imports products row by row. A bad row is reported and
// skipped; it never prevents the other rows from being created.
func (uc *CatalogUseCase) BatchCreateProducts(ctx context.Context, inputs []CreateProductInput) (*BatchCreateResult, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no products to import", domain.ErrInvalidProduct)
	}

	if len(inputs) > MaxBatchProducts {
		return nil, fmt.Errorf("%w: at most %d products per import", domain.ErrInvalidProduct, MaxBatchProducts)
	}

	result := &BatchCreateResult{
		Created: make([]*domain.Product, 0, len(inputs)),
		Failed:  []BatchRowError{},
	}

	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := uc.CreateProduct(ctx, input)
		if err != nil {
			result.Failed = append(result.Failed, BatchRowError{Row: i + 1, ProductID: input.ID, Err: err})
			continue
		}

		result.Created = append(result.Created, p)
	}

	log := logger.WithContext(ctx, uc.logger)
	log.Info().
		Int("created", len(result.Created)).
		Int("failed", len(result.Failed)).
		Msg("catalog import finished")

	return result, nil
}

// GetProduct retrieves a product by ID.
func (uc *CatalogUseCase) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return uc.productRepo.GetByID(ctx, id)
}

// ListProducts lists products ordered by ID.
func (uc *CatalogUseCase) ListProducts(ctx context.Context, input ListProductsInput) ([]*domain.Product, error) {
	limit, offset, err := domain.ValidatePagination(input.Limit, input.Offset)
	if err != nil {
		return nil, err
	}

	return uc.productRepo.List(ctx, limit, offset)
}

// UpdatePrice changes the catalog price. Committed sales keep their snapshot.
func (uc *CatalogUseCase) UpdatePrice(ctx context.Context, input UpdatePriceInput) (*domain.Product, error) {
	actor, err := actorOrContext(ctx, input.Actor)
	if err != nil {
		return nil, err
	}

	if err := domain.ValidatePrice(input.Price); err != nil {
		return nil, wrapInvalidProduct(err)
	}

	return uc.mutate(ctx, input.ProductID, func(txCtx context.Context, tx Transaction, before *domain.Product) (*domain.Product, *mutation, error) {
		after, err := uc.productRepo.UpdatePrice(txCtx, tx, before.ID, input.Price, uc.clock.Now().UTC())
		if err != nil {
			return nil, nil, err
		}

		return after, &mutation{
			action:    domain.AuditActionProductPriceUpdate,
			eventType: domain.EventTypeProductPriceChanged,
			actor:     actor,
			payload: map[string]any{
				"product_id": after.ID,
				"old_price":  before.Price.String(),
				"new_price":  after.Price.String(),
			},
		}, nil
	})
}

// AdjustStock applies a manual stock correction. A negative delta larger than
// the on-hand quantity fails with domain.ErrStockUnderflow.
func (uc *CatalogUseCase) AdjustStock(ctx context.Context, input AdjustStockInput) (*domain.Product, error) {
	actor, err := actorOrContext(ctx, input.Actor)
	if err != nil {
		return nil, err
	}

	if input.Delta == 0 {
		return nil, fmt.Errorf("%w: delta must not be zero", domain.ErrInvalidQuantity)
	}

	product, err := uc.mutate(ctx, input.ProductID, func(txCtx context.Context, tx Transaction, before *domain.Product) (*domain.Product, *mutation, error) {
		if err := before.ValidateAdjust(input.Delta); err != nil {
			return nil, nil, err
		}

		after, err := uc.productRepo.AdjustQuantity(txCtx, tx, before.ID, input.Delta, uc.clock.Now().UTC())
		if err != nil {
			return nil, nil, err
		}

		return after, &mutation{
			action:    domain.AuditActionStockAdjust,
			eventType: domain.EventTypeStockAdjusted,
			actor:     actor,
			payload:   domain.StockAdjustedPayload(after, input.Delta, input.Reason),
		}, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStockUnderflow) && uc.metrics != nil {
			uc.metrics.StockUnderflows.Inc()
		}
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.StockAdjustments.WithLabelValues("manual").Inc()
	}

	return product, nil
}

type mutation struct {
	payload   map[string]any
	action    domain.AuditAction
	eventType string
	actor     string
}

// mutate locks one product, applies fn and records the audit entry and
// outbox event in the same transaction.
func (uc *CatalogUseCase) mutate(
	ctx context.Context,
	productID string,
	fn func(ctx context.Context, tx Transaction, before *domain.Product) (*domain.Product, *mutation, error),
) (*domain.Product, error) {
	if err := domain.ValidateID(productID); err != nil {
		return nil, wrapInvalidProduct(err)
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	locked, err := uc.productRepo.GetByIDsForUpdate(txCtx, tx, []string{productID})
	if err != nil {
		return nil, err
	}
	if len(locked) == 0 {
		return nil, &domain.ProductNotFoundError{ProductIDs: []string{productID}}
	}

	before := *locked[0]

	after, m, err := fn(txCtx, tx, &before)
	if err != nil {
		return nil, err
	}

	now := uc.clock.Now().UTC()

	if uc.outboxRepo != nil {
		if err := uc.outboxRepo.Create(txCtx, tx, &domain.OutboxEvent{
			ID:            uc.idGen.Generate(),
			AggregateID:   after.ID,
			AggregateType: domain.AggregateTypeProduct,
			EventType:     m.eventType,
			Payload:       m.payload,
			CreatedAt:     now,
		}); err != nil {
			return nil, err
		}
	}

	if uc.auditRepo != nil {
		entry := &domain.AuditEntry{
			ID:          uc.idGen.Generate(),
			Actor:       m.actor,
			Action:      string(m.action),
			SubjectType: domain.SubjectTypeProduct,
			SubjectID:   after.ID,
			RequestID:   domain.RequestIDFromContext(ctx),
			Before:      domain.MarshalState(&before),
			Detail:      domain.MarshalState(after),
			Status:      string(domain.AuditStatusSuccess),
			CreatedAt:   now,
		}
		if err := uc.auditRepo.CreateTx(txCtx, tx, entry); err != nil {
			return nil, err
		}

		if uc.metrics != nil {
			uc.metrics.AuditEntriesCreated.WithLabelValues(entry.Action, entry.Status).Inc()
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	log := logger.WithContext(ctx, uc.logger)
	log.Info().
		Str("product_id", after.ID).
		Str("action", string(m.action)).
		Msg("catalog updated")

	return after, nil
}

// audit writes a standalone entry; failures are logged only.
func (uc *CatalogUseCase) audit(ctx context.Context, entry *domain.AuditEntry) {
	if uc.auditRepo == nil {
		return
	}

	entry.ID = uc.idGen.Generate()
	entry.RequestID = domain.RequestIDFromContext(ctx)

	if err := uc.auditRepo.Create(ctx, entry); err != nil {
		log := logger.WithContext(ctx, uc.logger)
		log.Warn().Err(err).Str("action", entry.Action).Msg("failed to write audit entry")
		return
	}

	if uc.metrics != nil {
		uc.metrics.AuditEntriesCreated.WithLabelValues(entry.Action, entry.Status).Inc()
	}
}

func actorOrContext(ctx context.Context, actor string) (string, error) {
	if strings.TrimSpace(actor) == "" {
		if fromCtx, ok := domain.ActorFromContext(ctx); ok {
			actor = fromCtx
		}
	}

	if err := domain.ValidateActor(actor); err != nil {
		return "", err
	}

	return actor, nil
}

func wrapInvalidProduct(err error) error {
	if errors.Is(err, domain.ErrInvalidProduct) {
		return err
	}

	return fmt.Errorf("%w: %w", domain.ErrInvalidProduct, err)
}
