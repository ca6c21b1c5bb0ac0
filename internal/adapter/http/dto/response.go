package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/saleledger/internal/domain"
	"github.com/iho/saleledger/internal/usecase"
)

// ErrorResponse represents an error in API responses. Shortages and
// ProductIDs are only set for stock and missing-product rejections.
type ErrorResponse struct {
	Error      string                 `json:"error"`
	Message    string                 `json:"message,omitempty"`
	Shortages  []domain.StockShortage `json:"shortages,omitempty"`
	ProductIDs []string               `json:"product_ids,omitempty"`
}

// ProductResponse represents a product in API responses.
type ProductResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProductFromDomain converts a domain product to a response.
func ProductFromDomain(p *domain.Product) *ProductResponse {
	return &ProductResponse{
		ID:        p.ID,
		Name:      p.Name,
		Category:  p.Category,
		Price:     p.Price,
		Quantity:  p.Quantity,
		Version:   p.Version,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// ProductsFromDomain converts domain products to responses.
func ProductsFromDomain(products []*domain.Product) []*ProductResponse {
	result := make([]*ProductResponse, len(products))
	for i, p := range products {
		result[i] = ProductFromDomain(p)
	}
	return result
}

// BatchRowErrorResponse describes one rejected import row.
type BatchRowErrorResponse struct {
	Row       int    `json:"row"`
	ProductID string `json:"product_id,omitempty"`
	Error     string `json:"error"`
}

// BatchCreateProductsResponse reports the outcome of a catalog import.
type BatchCreateProductsResponse struct {
	SuccessCount int                     `json:"success_count"`
	Created      []*ProductResponse      `json:"created"`
	Errors       []BatchRowErrorResponse `json:"errors"`
}

// BatchCreateFromUseCase converts an import result to a response.
func BatchCreateFromUseCase(res *usecase.BatchCreateResult) *BatchCreateProductsResponse {
	resp := &BatchCreateProductsResponse{
		SuccessCount: len(res.Created),
		Created:      ProductsFromDomain(res.Created),
		Errors:       make([]BatchRowErrorResponse, len(res.Failed)),
	}

	for i, f := range res.Failed {
		resp.Errors[i] = BatchRowErrorResponse{Row: f.Row, ProductID: f.ProductID, Error: f.Err.Error()}
	}

	return resp
}

// SaleLineResponse represents one line of a sale.
type SaleLineResponse struct {
	LineNo      int             `json:"line_no"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// InstallmentResponse represents one scheduled payment.
type InstallmentResponse struct {
	Index   int             `json:"index"`
	DueDate time.Time       `json:"due_date"`
	Amount  decimal.Decimal `json:"amount"`
}

// SaleResponse represents a sale or return in API responses.
type SaleResponse struct {
	ID             string                `json:"id"`
	Kind           string                `json:"kind"`
	OriginalSaleID *string               `json:"original_sale_id,omitempty"`
	PaymentMethod  string                `json:"payment_method"`
	Actor          string                `json:"actor"`
	Reason         string                `json:"reason,omitempty"`
	Total          decimal.Decimal       `json:"total"`
	Discount       decimal.Decimal       `json:"discount"`
	CommittedAt    time.Time             `json:"committed_at"`
	Lines          []SaleLineResponse    `json:"lines"`
	Installments   []InstallmentResponse `json:"installments,omitempty"`
}

// SaleFromDomain converts a domain sale to a response.
func SaleFromDomain(s *domain.Sale) *SaleResponse {
	resp := &SaleResponse{
		ID:             s.ID,
		Kind:           string(s.Kind),
		OriginalSaleID: s.OriginalSaleID,
		PaymentMethod:  string(s.PaymentMethod),
		Actor:          s.Actor,
		Reason:         s.Reason,
		Total:          s.Total,
		Discount:       s.Discount(),
		CommittedAt:    s.CommittedAt,
		Lines:          make([]SaleLineResponse, len(s.Lines)),
	}

	for i, l := range s.Lines {
		resp.Lines[i] = SaleLineResponse{
			LineNo:      l.LineNo,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Discount:    l.Discount,
			Subtotal:    l.Subtotal,
		}
	}

	for _, inst := range s.Installments {
		resp.Installments = append(resp.Installments, InstallmentResponse{
			Index:   inst.Index,
			DueDate: inst.DueDate,
			Amount:  inst.Amount,
		})
	}

	return resp
}

// SalesFromDomain converts domain sales to responses.
func SalesFromDomain(sales []*domain.Sale) []*SaleResponse {
	result := make([]*SaleResponse, len(sales))
	for i, s := range sales {
		result[i] = SaleFromDomain(s)
	}
	return result
}

// AuditEntryResponse represents an audit log entry.
type AuditEntryResponse struct {
	ID          string         `json:"id"`
	Actor       string         `json:"actor"`
	Action      string         `json:"action"`
	SubjectType string         `json:"subject_type,omitempty"`
	SubjectID   string         `json:"subject_id,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Before      map[string]any `json:"before,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AuditEntriesFromDomain converts domain audit entries to responses.
func AuditEntriesFromDomain(entries []*domain.AuditEntry) []*AuditEntryResponse {
	result := make([]*AuditEntryResponse, len(entries))
	for i, e := range entries {
		result[i] = AuditEntryFromDomain(e)
	}
	return result
}

// AuditEntryFromDomain converts a domain audit entry to a response.
func AuditEntryFromDomain(e *domain.AuditEntry) *AuditEntryResponse {
	return &AuditEntryResponse{
		ID:          e.ID,
		Actor:       e.Actor,
		Action:      e.Action,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		RequestID:   e.RequestID,
		Before:      e.Before,
		Detail:      e.Detail,
		Status:      e.Status,
		CreatedAt:   e.CreatedAt,
	}
}
