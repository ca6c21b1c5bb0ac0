package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/saleledger/internal/adapter/http/dto"
)

var errBadLine = errors.New("line must look like PRODUCT:QUANTITY or PRODUCT:QUANTITY@PRICE")

type rootOptions struct {
	baseURL string
	actor   string
	timeout time.Duration
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "saleledger-cli",
		Short:         "Saleledger CLI tool",
		Long:          `A command line interface for the saleledger point-of-sale API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "Base URL of the saleledger API")
	rootCmd.PersistentFlags().StringVar(&opts.actor, "actor", "", "Actor recorded on writes")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	client := func() *apiClient {
		return newAPIClient(strings.TrimRight(opts.baseURL, "/"), opts.actor, opts.timeout, out)
	}

	rootCmd.AddCommand(
		saleCmd(client),
		productCmd(client),
		reportCmd(client),
		auditCmd(client),
		ledgerCmd(client),
	)

	return rootCmd
}

// parseLines turns "P1:3" flags into line items. "P1:3@9.99" also overrides
// the unit price.
func parseLines(raw []string) ([]dto.LineItem, error) {
	lines := make([]dto.LineItem, 0, len(raw))
	for _, s := range raw {
		id, rest, ok := strings.Cut(s, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: %q", errBadLine, s)
		}

		qty, price, hasPrice := strings.Cut(rest, "@")
		n, err := strconv.ParseInt(qty, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", errBadLine, s)
		}

		item := dto.LineItem{ProductID: id, Quantity: n}
		if hasPrice {
			p, err := decimal.NewFromString(price)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", errBadLine, s)
			}
			item.UnitPrice = &p
		}

		lines = append(lines, item)
	}

	return lines, nil
}

func rangeQuery(from, to string) url.Values {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}

	return q
}

func saleCmd(client func() *apiClient) *cobra.Command {
	cmd := &cobra.Command{Use: "sale", Short: "Sale operations"}

	var (
		lines        []string
		payment      string
		installments int
		firstDue     string
		discount     string
	)

	commit := &cobra.Command{
		Use:   "commit",
		Short: "Commit a sale",
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := parseLines(lines)
			if err != nil {
				return err
			}

			req := dto.CommitSaleRequest{PaymentMethod: payment, Lines: items, Installments: installments}
			if discount != "" {
				d, err := decimal.NewFromString(discount)
				if err != nil {
					return fmt.Errorf("invalid --discount %q: %w", discount, err)
				}
				req.Discount = d
			}
			if firstDue != "" {
				due, err := time.Parse(dto.DateLayout, firstDue)
				if err != nil {
					return fmt.Errorf("invalid --first-due %q: %w", firstDue, err)
				}
				req.FirstDueDate = &due
			}

			return client().do(cmd.Context(), http.MethodPost, "/api/v1/sales", nil, req)
		},
	}
	commit.Flags().StringArrayVar(&lines, "line", nil, "Line as PRODUCT:QUANTITY[@PRICE] (repeatable)")
	commit.Flags().StringVar(&discount, "discount", "", "Discount on the whole sale, spread over the lines")
	commit.Flags().StringVar(&payment, "payment", "cash", "Payment method")
	commit.Flags().IntVar(&installments, "installments", 0, "Number of installments")
	commit.Flags().StringVar(&firstDue, "first-due", "", "First installment due date (YYYY-MM-DD)")

	get := &cobra.Command{
		Use:   "get SALE_ID",
		Short: "Show a sale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().do(cmd.Context(), http.MethodGet, "/api/v1/sales/"+url.PathEscape(args[0]), nil, nil)
		},
	}

	var (
		returnLines []string
		reason      string
	)

	ret := &cobra.Command{
		Use:   "return SALE_ID",
		Short: "Return items of a sale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseLines(returnLines)
			if err != nil {
				return err
			}

			path := "/api/v1/sales/" + url.PathEscape(args[0]) + "/returns"
			return client().do(cmd.Context(), http.MethodPost, path, nil, dto.ReturnSaleRequest{Reason: reason, Lines: items})
		},
	}
	ret.Flags().StringArrayVar(&returnLines, "line", nil, "Returned line as PRODUCT:QUANTITY (repeatable)")
	ret.Flags().StringVar(&reason, "reason", "", "Reason for the return")

	var from, to string
	list := &cobra.Command{
		Use:   "list",
		Short: "List sales in a time range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client().do(cmd.Context(), http.MethodGet, "/api/v1/sales", rangeQuery(from, to), nil)
		},
	}
	list.Flags().StringVar(&from, "from", "", "Inclusive start (YYYY-MM-DD or RFC3339)")
	list.Flags().StringVar(&to, "to", "", "Exclusive end (YYYY-MM-DD or RFC3339)")

	cmd.AddCommand(commit, get, ret, list)

	return cmd
}

func productCmd(client func() *apiClient) *cobra.Command {
	cmd := &cobra.Command{Use: "product", Short: "Catalog operations"}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List products",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{"limit": {strconv.Itoa(limit)}, "offset": {strconv.Itoa(offset)}}
			return client().do(cmd.Context(), http.MethodGet, "/api/v1/products", q, nil)
		},
	}
	list.Flags().IntVar(&limit, "limit", 100, "Page size")
	list.Flags().IntVar(&offset, "offset", 0, "Page offset")

	get := &cobra.Command{
		Use:   "get PRODUCT_ID",
		Short: "Show a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().do(cmd.Context(), http.MethodGet, "/api/v1/products/"+url.PathEscape(args[0]), nil, nil)
		},
	}

	var create dto.CreateProductRequest
	var price string
	add := &cobra.Command{
		Use:   "create",
		Short: "Add a product to the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid --price %q: %w", price, err)
			}
			create.Price = p

			return client().do(cmd.Context(), http.MethodPost, "/api/v1/products", nil, create)
		},
	}
	add.Flags().StringVar(&create.ID, "id", "", "Product ID (generated when empty)")
	add.Flags().StringVar(&create.Name, "name", "", "Product name")
	add.Flags().StringVar(&create.Category, "category", "", "Category")
	add.Flags().StringVar(&price, "price", "0", "Unit price")
	add.Flags().Int64Var(&create.Quantity, "quantity", 0, "Initial stock")

	var delta int64
	var reason string
	stock := &cobra.Command{
		Use:   "adjust-stock PRODUCT_ID",
		Short: "Apply a manual stock adjustment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/products/" + url.PathEscape(args[0]) + "/stock"
			return client().do(cmd.Context(), http.MethodPost, path, nil, dto.AdjustStockRequest{Delta: delta, Reason: reason})
		},
	}
	stock.Flags().Int64Var(&delta, "delta", 0, "Quantity change, negative to remove stock")
	stock.Flags().StringVar(&reason, "reason", "", "Reason for the adjustment")

	var file string
	batch := &cobra.Command{
		Use:   "import",
		Short: "Import products from a JSON file",
		Long:  `Reads a JSON array of products shaped like "product create" and reports per-row errors.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			var req dto.BatchCreateProductsRequest
			if err := json.Unmarshal(raw, &req.Products); err != nil {
				return fmt.Errorf("invalid product file: %w", err)
			}

			return client().do(cmd.Context(), http.MethodPost, "/api/v1/products/batch", nil, req)
		},
	}
	batch.Flags().StringVar(&file, "file", "-", "JSON file to import, - for stdin")

	cmd.AddCommand(list, get, add, stock, batch)

	return cmd
}

func reportCmd(client func() *apiClient) *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Sales reports"}

	var format string
	cmd.PersistentFlags().StringVar(&format, "format", formatJSON, "Output format: json or csv")

	var date string
	daily := &cobra.Command{
		Use:   "daily",
		Short: "Totals for one day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{"date": {date}}
			return client().export(cmd.Context(), "/api/v1/reports/daily", q, format, periodCSV)
		},
	}
	daily.Flags().StringVar(&date, "date", time.Now().Format(dto.DateLayout), "Day (YYYY-MM-DD)")

	var year, month int
	monthly := &cobra.Command{
		Use:   "monthly",
		Short: "Totals for one calendar month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{"year": {strconv.Itoa(year)}, "month": {strconv.Itoa(month)}}
			return client().export(cmd.Context(), "/api/v1/reports/monthly", q, format, periodCSV)
		},
	}
	monthly.Flags().IntVar(&year, "year", time.Now().Year(), "Year")
	monthly.Flags().IntVar(&month, "month", int(time.Now().Month()), "Month (1-12)")

	var from, to string
	product := &cobra.Command{
		Use:   "product PRODUCT_ID",
		Short: "Units and revenue for one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/reports/products/" + url.PathEscape(args[0])
			return client().export(cmd.Context(), path, rangeQuery(from, to), format, productCSV)
		},
	}
	product.Flags().StringVar(&from, "from", "", "Inclusive start")
	product.Flags().StringVar(&to, "to", "", "Exclusive end")

	methods := &cobra.Command{
		Use:   "payment-methods",
		Short: "Totals per payment method",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client().export(cmd.Context(), "/api/v1/reports/payment-methods", rangeQuery(from, to), format, paymentMethodsCSV)
		},
	}
	methods.Flags().StringVar(&from, "from", "", "Inclusive start")
	methods.Flags().StringVar(&to, "to", "", "Exclusive end")

	installments := &cobra.Command{
		Use:   "installments",
		Short: "Installment sales grouped by number of payments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client().export(cmd.Context(), "/api/v1/reports/installments", rangeQuery(from, to), format, installmentsCSV)
		},
	}
	installments.Flags().StringVar(&from, "from", "", "Inclusive start")
	installments.Flags().StringVar(&to, "to", "", "Exclusive end")

	cmd.AddCommand(daily, monthly, product, methods, installments)

	return cmd
}

func auditCmd(client func() *apiClient) *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Audit trail"}

	var (
		filterActor, action, subjectType, subjectID string
		limit                                       int
	)

	list := &cobra.Command{
		Use:   "list",
		Short: "List audit entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			for k, v := range map[string]string{
				"actor":        filterActor,
				"action":       action,
				"subject_type": subjectType,
				"subject_id":   subjectID,
			} {
				if v != "" {
					q.Set(k, v)
				}
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}

			return client().do(cmd.Context(), http.MethodGet, "/api/v1/audit", q, nil)
		},
	}
	list.Flags().StringVar(&filterActor, "by", "", "Only entries by this actor")
	list.Flags().StringVar(&action, "action", "", "Only this action")
	list.Flags().StringVar(&subjectType, "subject-type", "", "Only this subject type")
	list.Flags().StringVar(&subjectID, "subject-id", "", "Only this subject")
	list.Flags().IntVar(&limit, "limit", 0, "Page size")

	cmd.AddCommand(list)

	return cmd
}

func ledgerCmd(client func() *apiClient) *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Ledger operations"}

	consistency := &cobra.Command{
		Use:   "consistency",
		Short: "Check ledger consistency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client().do(cmd.Context(), http.MethodGet, "/api/v1/ledger/consistency", nil, nil)
		},
	}

	cmd.AddCommand(consistency)

	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}

	return os.ReadFile(path)
}
