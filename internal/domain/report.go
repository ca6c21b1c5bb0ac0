package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// ProductSales is the per-product slice of a period report.
type ProductSales struct {
	Revenue     decimal.Decimal `json:"revenue"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity_sold"`
}

// PeriodReport aggregates the ledger over a time range.
type PeriodReport struct {
	Range             TimeRange       `json:"range"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	PerProduct        []ProductSales  `json:"per_product"`
	TotalTransactions int64           `json:"total_transactions"`
}

// ProductReport aggregates a single product over a time range.
type ProductReport struct {
	Range            TimeRange       `json:"range"`
	Revenue          decimal.Decimal `json:"revenue"`
	ProductID        string          `json:"product_id"`
	QuantitySold     int64           `json:"quantity_sold"`
	TransactionCount int64           `json:"transaction_count"`
}

// PaymentMethodSummary aggregates one payment method over a time range.
type PaymentMethodSummary struct {
	Revenue          decimal.Decimal `json:"revenue"`
	Method           PaymentMethod   `json:"method"`
	TransactionCount int64           `json:"transaction_count"`
}

// InstallmentSummary aggregates sales split into the same number of payments.
type InstallmentSummary struct {
	Total        decimal.Decimal `json:"total"`
	Average      decimal.Decimal `json:"average"`
	Installments int             `json:"installments"`
	SaleCount    int64           `json:"sale_count"`
}

// SortProductSales orders by revenue descending, then product ID ascending.
func SortProductSales(rows []ProductSales) {
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].Revenue.Cmp(rows[j].Revenue); c != 0 {
			return c > 0
		}

		return rows[i].ProductID < rows[j].ProductID
	})
}

// SortPaymentMethods orders by revenue descending, then method ascending.
func SortPaymentMethods(rows []PaymentMethodSummary) {
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].Revenue.Cmp(rows[j].Revenue); c != 0 {
			return c > 0
		}

		return rows[i].Method < rows[j].Method
	})
}
