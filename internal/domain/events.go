package domain

import "time"

// Event types
const (
	EventTypeSaleCommitted       = "sale.committed"
	EventTypeSaleReturned        = "sale.returned"
	EventTypeStockAdjusted       = "stock.adjusted"
	EventTypeProductPriceChanged = "product.price_changed"
)

// Aggregate types
const (
	AggregateTypeSale    = "sale"
	AggregateTypeProduct = "product"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// SaleCommittedPayload builds the payload shared by sale.committed and sale.returned.
func SaleCommittedPayload(s *Sale) map[string]any {
	lines := make([]map[string]any, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, map[string]any{
			"product_id": l.ProductID,
			"quantity":   l.Quantity,
			"unit_price": l.UnitPrice.String(),
			"discount":   l.Discount.String(),
			"subtotal":   l.Subtotal.String(),
		})
	}

	payload := map[string]any{
		"sale_id":        s.ID,
		"kind":           string(s.Kind),
		"payment_method": string(s.PaymentMethod),
		"actor":          s.Actor,
		"total":          s.Total.String(),
		"lines":          lines,
		"committed_at":   s.CommittedAt.Format(time.RFC3339Nano),
	}
	if s.OriginalSaleID != nil {
		payload["original_sale_id"] = *s.OriginalSaleID
	}

	return payload
}

// StockAdjustedPayload describes a stock change outside a sale.
func StockAdjustedPayload(p *Product, delta int64, reason string) map[string]any {
	return map[string]any{
		"product_id": p.ID,
		"delta":      delta,
		"quantity":   p.Quantity,
		"reason":     reason,
	}
}
