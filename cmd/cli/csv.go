package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/iho/saleledger/internal/domain"
)

const (
	formatJSON = "json"
	formatCSV  = "csv"
)

var errBadFormat = errors.New("format must be json or csv")

// csvExport turns a report body into CSV records, header first.
type csvExport func(raw []byte) ([][]string, error)

func exportCSV[T any](header []string, records func(T) [][]string) csvExport {
	return func(raw []byte) ([][]string, error) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}

		return append([][]string{header}, records(v)...), nil
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// periodCSV lists products by revenue and ends with a TOTAL row.
var periodCSV = exportCSV(
	[]string{"product_id", "product_name", "quantity_sold", "revenue"},
	func(r domain.PeriodReport) [][]string {
		out := make([][]string, 0, len(r.PerProduct)+1)
		for _, p := range r.PerProduct {
			out = append(out, []string{p.ProductID, p.ProductName, itoa(p.Quantity), money(p.Revenue)})
		}

		return append(out, []string{"TOTAL", itoa(r.TotalTransactions) + " transactions", "", money(r.TotalRevenue)})
	},
)

var productCSV = exportCSV(
	[]string{"product_id", "quantity_sold", "transaction_count", "revenue"},
	func(r domain.ProductReport) [][]string {
		return [][]string{{r.ProductID, itoa(r.QuantitySold), itoa(r.TransactionCount), money(r.Revenue)}}
	},
)

var paymentMethodsCSV = exportCSV(
	[]string{"method", "transaction_count", "revenue"},
	func(rows []domain.PaymentMethodSummary) [][]string {
		out := make([][]string, 0, len(rows))
		for _, r := range rows {
			out = append(out, []string{string(r.Method), itoa(r.TransactionCount), money(r.Revenue)})
		}

		return out
	},
)

var installmentsCSV = exportCSV(
	[]string{"installments", "sale_count", "total", "average"},
	func(rows []domain.InstallmentSummary) [][]string {
		out := make([][]string, 0, len(rows))
		for _, r := range rows {
			out = append(out, []string{strconv.Itoa(r.Installments), itoa(r.SaleCount), money(r.Total), money(r.Average)})
		}

		return out
	},
)
