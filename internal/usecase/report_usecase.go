package usecase

import (
	"context"
	"encoding/json"
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

// ReportUseCase aggregates the sales ledger. Reports only read line snapshots,
// so catalog price changes never rewrite history.
type ReportUseCase struct {
	saleRepo SaleRepository
	cache    Cache
	metrics  *metrics.Metrics
	location *time.Location
	cacheTTL time.Duration
	clock    Clock
	logger   zerolog.Logger
}

// ReportOption customises a ReportUseCase.
type ReportOption func(*ReportUseCase)

// WithReportLocation sets the timezone that defines calendar days and months.
func WithReportLocation(loc *time.Location) ReportOption {
	return func(uc *ReportUseCase) {
		if loc != nil {
			uc.location = loc
		}
	}
}

// WithReportCache enables caching of reports over closed periods.
func WithReportCache(cache Cache, ttl time.Duration) ReportOption {
	return func(uc *ReportUseCase) {
		uc.cache = cache
		if ttl > 0 {
			uc.cacheTTL = ttl
		}
	}
}

// WithReportClock overrides the clock used to decide whether a period is closed.
func WithReportClock(c Clock) ReportOption {
	return func(uc *ReportUseCase) { uc.clock = c }
}

// WithReportLogger sets the logger.
func WithReportLogger(l zerolog.Logger) ReportOption {
	return func(uc *ReportUseCase) { uc.logger = l }
}

// NewReportUseCase creates a new ReportUseCase.
func NewReportUseCase(saleRepo SaleRepository, metrics *metrics.Metrics, opts ...ReportOption) *ReportUseCase {
	uc := &ReportUseCase{
		saleRepo: saleRepo,
		metrics:  metrics,
		location: time.UTC,
		cacheTTL: DefaultReportCacheTTL,
		clock:    SystemClock{},
		logger:   zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// DailyReport aggregates the calendar day containing date.
func (uc *ReportUseCase) DailyReport(ctx context.Context, date time.Time) (*domain.PeriodReport, error) {
	return uc.periodReport(ctx, "daily", domain.DayRange(date, uc.location))
}

// MonthlyReport aggregates a calendar month.
func (uc *ReportUseCase) MonthlyReport(ctx context.Context, year int, month time.Month) (*domain.PeriodReport, error) {
	r, err := domain.MonthRange(year, month, uc.location)
	if err != nil {
		return nil, err
	}

	return uc.periodReport(ctx, "monthly", r)
}

// PeriodReport aggregates an arbitrary range.
func (uc *ReportUseCase) PeriodReport(ctx context.Context, r domain.TimeRange) (*domain.PeriodReport, error) {
	return uc.periodReport(ctx, "period", r)
}

// periodReport aggregates revenue, transaction count and per-product totals
// over r. Returns are included and net against sales.
func (uc *ReportUseCase) periodReport(ctx context.Context, name string, r domain.TimeRange) (*domain.PeriodReport, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("report:period:%s:%s", rangeKey(r), uc.location.String())

	return cached(ctx, uc, name, key, r, func(ctx context.Context) (*domain.PeriodReport, error) {
		report := &domain.PeriodReport{
			Range:        r,
			TotalRevenue: decimal.Zero,
			PerProduct:   []domain.ProductSales{},
		}

		rows := make(map[string]*domain.ProductSales)

		for sale, err := range uc.saleRepo.List(ctx, r) {
			if err != nil {
				return nil, err
			}

			report.TotalTransactions++

			for _, line := range sale.Lines {
				report.TotalRevenue = report.TotalRevenue.Add(line.Subtotal)

				row, ok := rows[line.ProductID]
				if !ok {
					row = &domain.ProductSales{ProductID: line.ProductID, Revenue: decimal.Zero}
					rows[line.ProductID] = row
				}

				row.ProductName = line.ProductName
				row.Quantity += line.Quantity
				row.Revenue = row.Revenue.Add(line.Subtotal)
			}
		}

		for _, row := range rows {
			report.PerProduct = append(report.PerProduct, *row)
		}
		domain.SortProductSales(report.PerProduct)

		return report, nil
	})
}

// ProductReport aggregates one product over r. A product with no sales in
// the range, or that does not exist, yields a zero report.
func (uc *ReportUseCase) ProductReport(ctx context.Context, productID string, r domain.TimeRange) (*domain.ProductReport, error) {
	if err := domain.ValidateID(productID); err != nil {
		return nil, err
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("report:product:%s:%s", productID, rangeKey(r))

	return cached(ctx, uc, "product", key, r, func(ctx context.Context) (*domain.ProductReport, error) {
		report := &domain.ProductReport{
			Range:     r,
			ProductID: productID,
			Revenue:   decimal.Zero,
		}

		for sale, err := range uc.saleRepo.List(ctx, r) {
			if err != nil {
				return nil, err
			}

			touched := false
			for _, line := range sale.Lines {
				if line.ProductID != productID {
					continue
				}

				touched = true
				report.QuantitySold += line.Quantity
				report.Revenue = report.Revenue.Add(line.Subtotal)
			}

			if touched {
				report.TransactionCount++
			}
		}

		return report, nil
	})
}

// PaymentMethodReport totals transactions and revenue per payment method.
func (uc *ReportUseCase) PaymentMethodReport(ctx context.Context, r domain.TimeRange) ([]domain.PaymentMethodSummary, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	key := "report:payment:" + rangeKey(r)

	out, err := cached(ctx, uc, "payment_methods", key, r, func(ctx context.Context) (*[]domain.PaymentMethodSummary, error) {
		totals := make(map[domain.PaymentMethod]*domain.PaymentMethodSummary)

		for sale, err := range uc.saleRepo.List(ctx, r) {
			if err != nil {
				return nil, err
			}

			row, ok := totals[sale.PaymentMethod]
			if !ok {
				row = &domain.PaymentMethodSummary{Method: sale.PaymentMethod, Revenue: decimal.Zero}
				totals[sale.PaymentMethod] = row
			}

			row.TransactionCount++
			row.Revenue = row.Revenue.Add(sale.Total)
		}

		rows := make([]domain.PaymentMethodSummary, 0, len(totals))
		for _, row := range totals {
			rows = append(rows, *row)
		}
		domain.SortPaymentMethods(rows)

		return &rows, nil
	})
	if err != nil {
		return nil, err
	}

	return *out, nil
}

// InstallmentReport groups sales paid in more than one installment by the
// number of installments, ascending.
func (uc *ReportUseCase) InstallmentReport(ctx context.Context, r domain.TimeRange) ([]domain.InstallmentSummary, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	key := "report:installments:" + rangeKey(r)

	out, err := cached(ctx, uc, "installments", key, r, func(ctx context.Context) (*[]domain.InstallmentSummary, error) {
		groups := make(map[int]*domain.InstallmentSummary)

		for sale, err := range uc.saleRepo.List(ctx, r) {
			if err != nil {
				return nil, err
			}

			n := len(sale.Installments)
			if sale.IsReturn() || n < 2 {
				continue
			}

			row, ok := groups[n]
			if !ok {
				row = &domain.InstallmentSummary{Installments: n, Total: decimal.Zero}
				groups[n] = row
			}

			row.SaleCount++
			row.Total = row.Total.Add(sale.Total)
		}

		rows := make([]domain.InstallmentSummary, 0, len(groups))
		for _, row := range groups {
			row.Average = row.Total.Div(decimal.NewFromInt(row.SaleCount)).Round(2)
			rows = append(rows, *row)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Installments < rows[j].Installments })

		return &rows, nil
	})
	if err != nil {
		return nil, err
	}

	return *out, nil
}

// cached serves closed periods from the cache when one is configured. A period
// counts as closed once no in-flight transaction can still commit into it.
func cached[T any](
	ctx context.Context,
	uc *ReportUseCase,
	name, key string,
	r domain.TimeRange,
	compute func(context.Context) (*T, error),
) (*T, error) {
	ctx, span := tracer.Start(ctx, "ReportUseCase."+name, trace.WithAttributes(
		attribute.String("report.from", r.From.String()),
		attribute.String("report.to", r.To.String()),
	))
	defer span.End()

	log := logger.WithContext(ctx, uc.logger)
	start := time.Now()

	cacheable := uc.cache != nil && r.ClosedBefore(uc.clock.Now().Add(-DefaultTransactionTimeout))
	if cacheable {
		data, err := uc.cache.Get(ctx, key)
		switch {
		case err == nil:
			var out T
			if jsonErr := json.Unmarshal(data, &out); jsonErr == nil {
				uc.observeCache(name, "hit")
				return &out, nil
			}
			log.Warn().Str("key", key).Msg("discarding undecodable cached report")
		case !errors.Is(err, ErrCacheMiss):
			log.Warn().Err(err).Str("key", key).Msg("report cache read failed")
		}
		uc.observeCache(name, "miss")
	}

	out, err := compute(ctx)
	if err != nil {
		return nil, failSpan(span, err)
	}

	if cacheable {
		if data, err := json.Marshal(out); err == nil {
			if err := uc.cache.Set(ctx, key, data, uc.cacheTTL); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("report cache write failed")
			}
		}
	}

	if uc.metrics != nil {
		uc.metrics.ReportDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}

	return out, nil
}

func (uc *ReportUseCase) observeCache(report, result string) {
	if uc.metrics != nil {
		uc.metrics.ReportCache.WithLabelValues(report, result).Inc()
	}
}

func rangeKey(r domain.TimeRange) string {
	bound := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return fmt.Sprintf("%d", t.UnixNano())
	}

	return bound(r.From) + ":" + bound(r.To)
}
