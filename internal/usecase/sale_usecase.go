package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/infrastructure/logger"
	"github.com/iho/saleledger/internal/infrastructure/metrics"
)

// SaleUseCase commits sales and returns against the catalog and the ledger.
type SaleUseCase struct {
	txManager   TransactionManager
	productRepo ProductRepository
	saleRepo    SaleRepository
	outboxRepo  OutboxRepository
	auditRepo   AuditRepository
	idGen       IDGenerator
	retrier     Retrier
	metrics     *metrics.Metrics
	clock       Clock
	logger      zerolog.Logger
}

// SaleOption customises a SaleUseCase.
type SaleOption func(*SaleUseCase)

// WithSaleClock overrides the commit timestamp source.
func WithSaleClock(c Clock) SaleOption {
	return func(uc *SaleUseCase) { uc.clock = c }
}

// WithSaleLogger sets the logger.
func WithSaleLogger(l zerolog.Logger) SaleOption {
	return func(uc *SaleUseCase) { uc.logger = l }
}

// NewSaleUseCase creates a new SaleUseCase. retrier and metrics may be nil.
func NewSaleUseCase(
	txManager TransactionManager,
	productRepo ProductRepository,
	saleRepo SaleRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	retrier Retrier,
	metrics *metrics.Metrics,
	opts ...SaleOption,
) *SaleUseCase {
	uc := &SaleUseCase{
		txManager:   txManager,
		productRepo: productRepo,
		saleRepo:    saleRepo,
		outboxRepo:  outboxRepo,
		auditRepo:   auditRepo,
		idGen:       idGen,
		retrier:     retrier,
		metrics:     metrics,
		clock:       SystemClock{},
		logger:      zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// LineRequest asks for quantity units of one product. UnitPrice, when set,
// overrides the catalog price for this line only.
type LineRequest struct {
	UnitPrice *decimal.Decimal
	ProductID string
	Quantity  int64
}

// CommitSaleInput represents input for committing a sale.
type CommitSaleInput struct {
	Discount      decimal.Decimal // sale-level, spread over the lines
	FirstDueDate  *time.Time
	PaymentMethod domain.PaymentMethod
	Actor         string
	Lines         []LineRequest
	Installments  int
}

// ReturnSaleInput represents input for returning items of an earlier sale.
type ReturnSaleInput struct {
	OriginalSaleID string
	Actor          string
	Reason         string
	Lines          []LineRequest
}

// ListSalesInput represents input for listing sales.
type ListSalesInput struct {
	Range domain.TimeRange
	Limit int
}

func validateLines(lines []LineRequest) error {
	if len(lines) == 0 {
		return domain.InvalidSaleRequest(errors.New("at least one line is required"))
	}

	if len(lines) > domain.MaxLinesPerSale {
		return domain.InvalidSaleRequest(fmt.Errorf("at most %d lines are allowed", domain.MaxLinesPerSale))
	}

	for i, l := range lines {
		if err := domain.ValidateID(l.ProductID); err != nil {
			return domain.InvalidSaleRequest(fmt.Errorf("line %d: %w", i+1, err))
		}

		if l.Quantity <= 0 {
			return domain.InvalidSaleRequest(fmt.Errorf("line %d: %w", i+1, domain.ErrInvalidQuantity))
		}

		if l.Quantity > domain.MaxLineQuantity {
			return domain.InvalidSaleRequest(fmt.Errorf("line %d: quantity exceeds %d", i+1, domain.MaxLineQuantity))
		}

		if l.UnitPrice != nil {
			if err := domain.ValidatePrice(*l.UnitPrice); err != nil {
				return domain.InvalidSaleRequest(fmt.Errorf("line %d: %w", i+1, err))
			}
		}
	}

	return nil
}

// aggregateLines sums quantities per distinct product and returns the IDs
// sorted, which is the lock order.
func aggregateLines(lines []LineRequest) (map[string]int64, []string) {
	requested := make(map[string]int64, len(lines))
	for _, l := range lines {
		requested[l.ProductID] += l.Quantity
	}

	ids := make([]string, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return requested, ids
}

func (uc *SaleUseCase) resolveActor(ctx context.Context, actor string) (string, error) {
	actor, err := actorOrContext(ctx, actor)
	if err != nil {
		return "", domain.InvalidSaleRequest(err)
	}

	return actor, nil
}

func (uc *SaleUseCase) retry(ctx context.Context, op func() error) error {
	if uc.retrier == nil {
		return op()
	}

	return uc.retrier.Retry(ctx, op)
}

// CommitSale atomically validates stock, decrements it and appends the sale.
func (uc *SaleUseCase) CommitSale(ctx context.Context, input CommitSaleInput) (*domain.Sale, error) {
	ctx, span := tracer.Start(ctx, "SaleUseCase.CommitSale", trace.WithAttributes(
		attribute.Int("sale.lines", len(input.Lines)),
		attribute.String("sale.payment_method", string(input.PaymentMethod)),
	))
	defer span.End()

	start := time.Now()
	log := logger.WithContext(ctx, uc.logger)

	// 0. Validate inputs before starting transaction
	actor, err := uc.resolveActor(ctx, input.Actor)
	if err != nil {
		uc.recordRejection("invalid_request")
		return nil, failSpan(span, err)
	}
	input.Actor = actor

	if err := validateLines(input.Lines); err != nil {
		uc.recordRejection("invalid_request")
		return nil, failSpan(span, err)
	}

	if !input.PaymentMethod.Valid() {
		uc.recordRejection("invalid_request")
		return nil, failSpan(span, domain.InvalidSaleRequest(fmt.Errorf("%w: %q", domain.ErrInvalidPaymentMethod, input.PaymentMethod)))
	}

	if input.Installments < 0 || input.Installments > domain.MaxInstallments {
		uc.recordRejection("invalid_request")
		return nil, failSpan(span, domain.InvalidSaleRequest(fmt.Errorf("installments must be between 0 and %d", domain.MaxInstallments)))
	}

	if input.Discount.IsNegative() {
		uc.recordRejection("invalid_request")
		return nil, failSpan(span, domain.InvalidSaleRequest(fmt.Errorf("%w: %s", domain.ErrInvalidDiscount, input.Discount)))
	}

	// 1. Aggregate per product and sort (DEADLOCK PREVENTION)
	requested, ids := aggregateLines(input.Lines)

	var sale *domain.Sale
	err = uc.retry(ctx, func() error {
		s, err := uc.commitOnce(ctx, input, requested, ids)
		if err != nil {
			return err
		}
		sale = s
		return nil
	})
	if err != nil {
		return nil, failSpan(span, uc.handleCommitError(log, input, err))
	}

	if uc.metrics != nil {
		uc.metrics.SalesCommitted.Inc()
		uc.metrics.SaleDuration.Observe(time.Since(start).Seconds())
		uc.metrics.SaleLines.Observe(float64(len(sale.Lines)))
		uc.metrics.SaleRevenue.Add(sale.Total.InexactFloat64())
		uc.metrics.StockAdjustments.WithLabelValues("sale").Add(float64(len(ids)))
	}

	span.SetAttributes(attribute.String("sale.id", sale.ID))
	log.Info().
		Str("sale_id", sale.ID).
		Str("total", sale.Total.String()).
		Int("lines", len(sale.Lines)).
		Msg("sale committed")

	return sale, nil
}

func (uc *SaleUseCase) commitOnce(
	ctx context.Context,
	input CommitSaleInput,
	requested map[string]int64,
	ids []string,
) (*domain.Sale, error) {
	// Add transaction timeout
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	// 2. Begin transaction
	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	// 3. Lock products in sorted order
	products, err := uc.productRepo.GetByIDsForUpdate(txCtx, tx, ids)
	if err != nil {
		return nil, err
	}

	productMap := make(map[string]*domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	// 4. Every product must exist and cover its aggregated quantity
	var missing []string
	for _, id := range ids {
		if productMap[id] == nil {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.ProductNotFoundError{ProductIDs: missing}
	}

	var shortages []domain.StockShortage
	for _, id := range ids {
		p := productMap[id]
		if !p.CanFulfil(requested[id]) {
			shortages = append(shortages, domain.StockShortage{
				ProductID: id,
				Requested: requested[id],
				Available: p.Quantity,
			})
		}
	}
	if len(shortages) > 0 {
		return nil, &domain.InsufficientStockError{Shortages: shortages}
	}

	// 5. Build the sale with price snapshots, in request order
	now := uc.clock.Now().UTC()
	sale := &domain.Sale{
		ID:            uc.idGen.Generate(),
		Kind:          domain.SaleKindSale,
		PaymentMethod: input.PaymentMethod,
		Actor:         input.Actor,
		CommittedAt:   now,
		Lines:         make([]domain.SaleLine, 0, len(input.Lines)),
	}

	for i, l := range input.Lines {
		p := productMap[l.ProductID]
		price := p.Price
		if l.UnitPrice != nil {
			price = *l.UnitPrice
		}
		sale.Lines = append(sale.Lines, domain.NewSaleLine(i+1, p, l.Quantity, price))
	}

	if err := domain.ApplyDiscount(sale.Lines, input.Discount); err != nil {
		return nil, domain.InvalidSaleRequest(err)
	}
	sale.Total = sale.ComputeTotal()

	firstDue := now
	if input.FirstDueDate != nil {
		firstDue = *input.FirstDueDate
	}

	sale.Installments, err = domain.BuildInstallments(sale.Total, input.Installments, firstDue)
	if err != nil {
		return nil, err
	}

	if err := sale.Validate(); err != nil {
		return nil, err
	}

	// 6. Decrement stock, append to the ledger, audit, emit event
	for _, id := range ids {
		if _, err := uc.productRepo.AdjustQuantity(txCtx, tx, id, -requested[id], now); err != nil {
			return nil, err
		}
	}

	if err := uc.saleRepo.Create(txCtx, tx, sale); err != nil {
		return nil, err
	}

	if err := uc.writeSaleEvent(txCtx, tx, sale, domain.EventTypeSaleCommitted, now); err != nil {
		return nil, err
	}

	if err := uc.writeSaleAudit(ctx, txCtx, tx, sale, domain.AuditActionSaleCommit, nil, now); err != nil {
		return nil, err
	}

	// 7. Commit transaction
	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return sale, nil
}

// handleCommitError classifies a failed commit for logs and metrics and
// returns the error callers should see.
func (uc *SaleUseCase) handleCommitError(log zerolog.Logger, input CommitSaleInput, err error) error {
	var stockErr *domain.InsufficientStockError
	var notFoundErr *domain.ProductNotFoundError

	switch {
	case errors.As(err, &stockErr):
		uc.recordRejection("insufficient_stock")
		log.Info().Err(err).Interface("shortages", stockErr.Shortages).Msg("sale rejected")
		return err

	case errors.As(err, &notFoundErr):
		uc.recordRejection("product_not_found")
		log.Info().Err(err).Strs("missing", notFoundErr.ProductIDs).Msg("sale rejected")
		return err

	case errors.Is(err, domain.ErrStockUnderflow):
		// Shortages were checked under the same locks; reaching this is a storage fault.
		if uc.metrics != nil {
			uc.metrics.StockUnderflows.Inc()
			uc.metrics.SaleErrors.WithLabelValues("stock_underflow").Inc()
		}
		log.Error().Err(err).Strs("products", productIDs(input.Lines)).Msg("stock underflow while committing sale")
		return fmt.Errorf("internal error committing sale: %w", err)

	case errors.Is(err, domain.ErrInvalidSaleRequest):
		uc.recordRejection("invalid_request")
		return err

	default:
		if uc.metrics != nil {
			uc.metrics.SaleErrors.WithLabelValues("storage").Inc()
		}
		log.Error().Err(err).Msg("failed to commit sale")
		return err
	}
}

func (uc *SaleUseCase) recordRejection(reason string) {
	if uc.metrics != nil {
		uc.metrics.SalesRejected.WithLabelValues(reason).Inc()
	}
}

func (uc *SaleUseCase) writeSaleEvent(ctx context.Context, tx Transaction, sale *domain.Sale, eventType string, now time.Time) error {
	if uc.outboxRepo == nil {
		return nil
	}

	return uc.outboxRepo.Create(ctx, tx, &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   sale.ID,
		AggregateType: domain.AggregateTypeSale,
		EventType:     eventType,
		Payload:       domain.SaleCommittedPayload(sale),
		CreatedAt:     now,
	})
}

func (uc *SaleUseCase) writeSaleAudit(
	reqCtx, txCtx context.Context,
	tx Transaction,
	sale *domain.Sale,
	action domain.AuditAction,
	extra domain.JSON,
	now time.Time,
) error {
	if uc.auditRepo == nil {
		return nil
	}

	detail := domain.JSON{
		"kind":           string(sale.Kind),
		"payment_method": string(sale.PaymentMethod),
		"total":          sale.Total.String(),
		"lines":          len(sale.Lines),
	}
	for k, v := range extra {
		detail[k] = v
	}

	entry := &domain.AuditEntry{
		ID:          uc.idGen.Generate(),
		Actor:       sale.Actor,
		Action:      string(action),
		SubjectType: domain.SubjectTypeSale,
		SubjectID:   sale.ID,
		RequestID:   domain.RequestIDFromContext(reqCtx),
		Detail:      detail,
		Status:      string(domain.AuditStatusSuccess),
		CreatedAt:   now,
	}
	if err := uc.auditRepo.CreateTx(txCtx, tx, entry); err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.AuditEntriesCreated.WithLabelValues(entry.Action, entry.Status).Inc()
	}

	return nil
}

// ReturnSale records a return of items from an earlier sale as a new ledger
// entry with negative quantities and restocks the products.
func (uc *SaleUseCase) ReturnSale(ctx context.Context, input ReturnSaleInput) (*domain.Sale, error) {
	ctx, span := tracer.Start(ctx, "SaleUseCase.ReturnSale", trace.WithAttributes(
		attribute.String("sale.original_id", input.OriginalSaleID),
	))
	defer span.End()

	log := logger.WithContext(ctx, uc.logger)

	actor, err := uc.resolveActor(ctx, input.Actor)
	if err != nil {
		return nil, failSpan(span, err)
	}
	input.Actor = actor

	if err := domain.ValidateID(input.OriginalSaleID); err != nil {
		return nil, failSpan(span, domain.InvalidSaleRequest(err))
	}

	if err := validateLines(input.Lines); err != nil {
		return nil, failSpan(span, err)
	}

	for i, l := range input.Lines {
		if l.UnitPrice != nil {
			return nil, failSpan(span, domain.InvalidSaleRequest(fmt.Errorf("line %d: returns are priced from the original sale", i+1)))
		}
	}

	// The original is immutable, so it can be read outside the transaction.
	original, err := uc.saleRepo.GetByID(ctx, input.OriginalSaleID)
	if err != nil {
		return nil, failSpan(span, err)
	}

	if original.IsReturn() {
		return nil, failSpan(span, domain.InvalidSaleRequest(errors.New("a return cannot be returned")))
	}

	requested, ids := aggregateLines(input.Lines)
	sold := original.QuantityByProduct()
	for _, id := range ids {
		if sold[id] == 0 {
			return nil, failSpan(span, fmt.Errorf("%w: product %s is not on sale %s", domain.ErrReturnExceedsSold, id, original.ID))
		}
	}

	var ret *domain.Sale
	err = uc.retry(ctx, func() error {
		r, err := uc.returnOnce(ctx, input, original, requested, ids)
		if err != nil {
			return err
		}
		ret = r
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStockUnderflow) {
			log.Error().Err(err).Str("original_sale_id", original.ID).Msg("stock underflow while committing return")
			return nil, failSpan(span, fmt.Errorf("internal error committing return: %w", err))
		}

		return nil, failSpan(span, err)
	}

	if uc.metrics != nil {
		uc.metrics.SalesReturned.Inc()
		uc.metrics.ReturnRevenue.Add(ret.Total.Neg().InexactFloat64())
		uc.metrics.StockAdjustments.WithLabelValues("return").Add(float64(len(ids)))
	}

	log.Info().
		Str("sale_id", ret.ID).
		Str("original_sale_id", original.ID).
		Str("total", ret.Total.String()).
		Msg("return committed")

	return ret, nil
}

func (uc *SaleUseCase) returnOnce(
	ctx context.Context,
	input ReturnSaleInput,
	original *domain.Sale,
	requested map[string]int64,
	ids []string,
) (*domain.Sale, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	// Locking the products first serializes concurrent returns of the same items.
	products, err := uc.productRepo.GetByIDsForUpdate(txCtx, tx, ids)
	if err != nil {
		return nil, err
	}

	productMap := make(map[string]*domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	var missing []string
	for _, id := range ids {
		if productMap[id] == nil {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.ProductNotFoundError{ProductIDs: missing}
	}

	previous, err := uc.saleRepo.ListReturns(txCtx, tx, original.ID)
	if err != nil {
		return nil, err
	}

	// returned holds units and refunded the amount already given back per product.
	returned := make(map[string]int64)
	refunded := make(map[string]decimal.Decimal)
	for _, r := range previous {
		for _, l := range r.Lines {
			returned[l.ProductID] -= l.Quantity
			refunded[l.ProductID] = refunded[l.ProductID].Sub(l.Subtotal)
		}
	}

	sold := original.QuantityByProduct()
	for _, id := range ids {
		if remaining := sold[id] - returned[id]; requested[id] > remaining {
			return nil, fmt.Errorf("%w: product %s sold %d, already returned %d, requested %d",
				domain.ErrReturnExceedsSold, id, sold[id], returned[id], requested[id])
		}
	}

	// Refunds follow what the customer actually paid for the product, net of
	// discounts and price overrides.
	paid := make(map[string]decimal.Decimal, len(original.Lines))
	for _, l := range original.Lines {
		paid[l.ProductID] = paid[l.ProductID].Add(l.Subtotal)
	}

	now := uc.clock.Now().UTC()
	originalID := original.ID
	ret := &domain.Sale{
		ID:             uc.idGen.Generate(),
		Kind:           domain.SaleKindReturn,
		OriginalSaleID: &originalID,
		PaymentMethod:  original.PaymentMethod,
		Actor:          input.Actor,
		Reason:         input.Reason,
		CommittedAt:    now,
		Lines:          make([]domain.SaleLine, 0, len(input.Lines)),
	}

	for i, l := range input.Lines {
		id := l.ProductID
		returned[id] += l.Quantity

		// The return that empties the product refunds the exact remainder.
		refund := paid[id].Sub(refunded[id])
		if returned[id] < sold[id] {
			refund = paid[id].Mul(decimal.NewFromInt(l.Quantity)).
				Div(decimal.NewFromInt(sold[id])).
				RoundDown(domain.MaxPriceScale)
		}
		refunded[id] = refunded[id].Add(refund)

		ret.Lines = append(ret.Lines, domain.NewReturnLine(i+1, productMap[id], l.Quantity, refund))
	}
	ret.Total = ret.ComputeTotal()

	if err := ret.Validate(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := uc.productRepo.AdjustQuantity(txCtx, tx, id, requested[id], now); err != nil {
			return nil, err
		}
	}

	if err := uc.saleRepo.Create(txCtx, tx, ret); err != nil {
		return nil, err
	}

	if err := uc.writeSaleEvent(txCtx, tx, ret, domain.EventTypeSaleReturned, now); err != nil {
		return nil, err
	}

	extra := domain.JSON{"original_sale_id": original.ID, "reason": input.Reason}
	if err := uc.writeSaleAudit(ctx, txCtx, tx, ret, domain.AuditActionSaleReturn, extra, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return ret, nil
}

// GetSale retrieves a sale by ID.
func (uc *SaleUseCase) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return uc.saleRepo.GetByID(ctx, id)
}

// ListSales lists sales committed inside a range in ascending commit order.
func (uc *SaleUseCase) ListSales(ctx context.Context, input ListSalesInput) ([]*domain.Sale, error) {
	if err := input.Range.Validate(); err != nil {
		return nil, err
	}

	limit, _, _ := domain.ValidatePagination(input.Limit, 0)

	sales := make([]*domain.Sale, 0)
	for sale, err := range uc.saleRepo.List(ctx, input.Range) {
		if err != nil {
			return nil, err
		}

		sales = append(sales, sale)
		if len(sales) >= limit {
			break
		}
	}

	return sales, nil
}

func productIDs(lines []LineRequest) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}

	return ids
}
