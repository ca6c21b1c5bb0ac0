package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/saleledger/internal/domain"
)

// ReconciliationUseCase re-verifies ledger and catalog invariants.
type ReconciliationUseCase struct {
	productRepo ProductRepository
	saleRepo    SaleRepository
	clock       Clock
	logger      zerolog.Logger
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(productRepo ProductRepository, saleRepo SaleRepository, logger zerolog.Logger) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		productRepo: productRepo,
		saleRepo:    saleRepo,
		clock:       SystemClock{},
		logger:      logger,
	}
}

// Discrepancy is one invariant violation found by a consistency check.
type Discrepancy struct {
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	Problem     string `json:"problem"`
}

// ConsistencyReport is the outcome of CheckConsistency.
type ConsistencyReport struct {
	CheckedAt       time.Time     `json:"checked_at"`
	Discrepancies   []Discrepancy `json:"discrepancies"`
	SalesChecked    int64         `json:"sales_checked"`
	ProductsChecked int64         `json:"products_checked"`
	Consistent      bool          `json:"consistent"`
}

const reconciliationPageSize = 1000

// CheckConsistency walks the whole ledger and catalog. Every sale must
// reconcile, no return may exceed what its original sold, and no product
// may hold negative stock.
func (uc *ReconciliationUseCase) CheckConsistency(ctx context.Context) (*ConsistencyReport, error) {
	report := &ConsistencyReport{
		CheckedAt:     uc.clock.Now().UTC(),
		Discrepancies: []Discrepancy{},
	}

	sold := make(map[string]map[string]int64)
	returned := make(map[string]map[string]int64)

	for sale, err := range uc.saleRepo.List(ctx, domain.AllTime()) {
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger: %w", err)
		}

		report.SalesChecked++

		if err := sale.Validate(); err != nil {
			report.add(domain.SubjectTypeSale, sale.ID, err.Error())
			continue
		}

		if sale.IsReturn() {
			acc := returned[*sale.OriginalSaleID]
			if acc == nil {
				acc = make(map[string]int64)
				returned[*sale.OriginalSaleID] = acc
			}
			for id, qty := range sale.QuantityByProduct() {
				acc[id] -= qty
			}
			continue
		}

		sold[sale.ID] = sale.QuantityByProduct()
	}

	for originalID, products := range returned {
		original, ok := sold[originalID]
		if !ok {
			report.add(domain.SubjectTypeSale, originalID, "returns reference a sale missing from the ledger")
			continue
		}

		for id, qty := range products {
			if qty > original[id] {
				report.add(domain.SubjectTypeSale, originalID,
					fmt.Sprintf("product %s returned %d of %d sold", id, qty, original[id]))
			}
		}
	}

	for offset := 0; ; offset += reconciliationPageSize {
		products, err := uc.productRepo.List(ctx, reconciliationPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}

		for _, p := range products {
			report.ProductsChecked++
			if p.Quantity < 0 {
				report.add(domain.SubjectTypeProduct, p.ID, fmt.Sprintf("negative stock %d", p.Quantity))
			}
		}

		if len(products) < reconciliationPageSize {
			break
		}
	}

	report.Consistent = len(report.Discrepancies) == 0

	if !report.Consistent {
		uc.logger.Error().
			Int("discrepancies", len(report.Discrepancies)).
			Msg("ledger inconsistency detected")
	}

	return report, nil
}

func (r *ConsistencyReport) add(subjectType, subjectID, problem string) {
	r.Discrepancies = append(r.Discrepancies, Discrepancy{
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Problem:     problem,
	})
}
