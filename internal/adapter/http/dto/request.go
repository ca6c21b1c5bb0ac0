package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

// LineItem is one requested product line. UnitPrice overrides the catalog
// price for this line only.
type LineItem struct {
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	ProductID string           `json:"product_id"`
	Quantity  int64            `json:"quantity"`
}

func toLineRequests(items []LineItem) []usecase.LineRequest {
	lines := make([]usecase.LineRequest, len(items))
	for i, it := range items {
		lines[i] = usecase.LineRequest{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}

	return lines
}

// CommitSaleRequest represents a request to commit a sale.
type CommitSaleRequest struct {
	Discount      decimal.Decimal `json:"discount"`
	FirstDueDate  *time.Time      `json:"first_due_date,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	Lines         []LineItem      `json:"lines"`
	Installments  int             `json:"installments,omitempty"`
}

// ToUseCaseInput converts to use case input. An unknown payment method is
// reported as an invalid sale request.
func (r *CommitSaleRequest) ToUseCaseInput(actor string) (usecase.CommitSaleInput, error) {
	method, err := domain.ParsePaymentMethod(r.PaymentMethod)
	if err != nil {
		return usecase.CommitSaleInput{}, domain.InvalidSaleRequest(err)
	}

	return usecase.CommitSaleInput{
		Discount:      r.Discount,
		FirstDueDate:  r.FirstDueDate,
		PaymentMethod: method,
		Actor:         actor,
		Lines:         toLineRequests(r.Lines),
		Installments:  r.Installments,
	}, nil
}

// ReturnSaleRequest represents a request to return items of a sale.
type ReturnSaleRequest struct {
	Reason string     `json:"reason"`
	Lines  []LineItem `json:"lines"`
}

// ToUseCaseInput converts to use case input.
func (r *ReturnSaleRequest) ToUseCaseInput(saleID, actor string) usecase.ReturnSaleInput {
	return usecase.ReturnSaleInput{
		OriginalSaleID: saleID,
		Actor:          actor,
		Reason:         r.Reason,
		Lines:          toLineRequests(r.Lines),
	}
}

// CreateProductRequest represents a request to add a catalog product.
type CreateProductRequest struct {
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name"`
	Category string          `json:"category,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateProductRequest) ToUseCaseInput(actor string) usecase.CreateProductInput {
	return usecase.CreateProductInput{
		ID:       r.ID,
		Name:     r.Name,
		Category: r.Category,
		Actor:    actor,
		Price:    r.Price,
		Quantity: r.Quantity,
	}
}

// BatchCreateProductsRequest imports several products at once.
type BatchCreateProductsRequest struct {
	Products []CreateProductRequest `json:"products"`
}

// ToUseCaseInput converts to use case input.
func (r *BatchCreateProductsRequest) ToUseCaseInput(actor string) []usecase.CreateProductInput {
	inputs := make([]usecase.CreateProductInput, len(r.Products))
	for i := range r.Products {
		inputs[i] = r.Products[i].ToUseCaseInput(actor)
	}

	return inputs
}

// UpdatePriceRequest represents a catalog price change.
type UpdatePriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

// AdjustStockRequest represents a restock or shrinkage outside of a sale.
type AdjustStockRequest struct {
	Reason string `json:"reason"`
	Delta  int64  `json:"delta"`
}

// RecordAuditRequest represents a free-standing audit entry.
type RecordAuditRequest struct {
	Detail      map[string]any `json:"detail,omitempty"`
	Action      string         `json:"action"`
	SubjectType string         `json:"subject_type"`
	SubjectID   string         `json:"subject_id"`
}

// ToUseCaseInput converts to use case input.
func (r *RecordAuditRequest) ToUseCaseInput(actor string) usecase.RecordInput {
	return usecase.RecordInput{
		Detail:      r.Detail,
		Actor:       actor,
		Action:      r.Action,
		SubjectType: r.SubjectType,
		SubjectID:   r.SubjectID,
	}
}
