package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Sale metrics
	SalesCommitted prometheus.Counter
	SalesReturned  prometheus.Counter
	SalesRejected  *prometheus.CounterVec
	SaleDuration   prometheus.Histogram
	SaleLines      prometheus.Histogram
	SaleRevenue    prometheus.Counter
	ReturnRevenue  prometheus.Counter
	SaleErrors     *prometheus.CounterVec

	// Stock metrics
	StockAdjustments *prometheus.CounterVec
	StockUnderflows  prometheus.Counter

	// Report metrics
	ReportDuration *prometheus.HistogramVec
	ReportCache    *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Outbox metrics
	EventsPublished *prometheus.CounterVec
	EventErrors     *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Audit metrics
	AuditEntriesCreated *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registerer
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them on reg
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Sale metrics
		SalesCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "saleledger_sales_committed_total",
			Help: "Total number of sales committed",
		}),
		SalesReturned: factory.NewCounter(prometheus.CounterOpts{
			Name: "saleledger_sales_returned_total",
			Help: "Total number of returns committed",
		}),
		SalesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saleledger_sales_rejected_total",
				Help: "Total number of sales rejected by reason",
			},
			[]string{"reason"},
		),
		SaleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "saleledger_sale_duration_seconds",
			Help:    "Duration of sale commits including retries",
			Buckets: prometheus.DefBuckets,
		}),
		SaleLines: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "saleledger_sale_lines",
			Help:    "Number of lines per committed sale",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		SaleRevenue: factory.NewCounter(prometheus.CounterOpts{
			Name: "saleledger_sale_revenue_total",
			Help: "Revenue of committed sales",
		}),
		ReturnRevenue: factory.NewCounter(prometheus.CounterOpts{
			Name: "saleledger_return_refunds_total",
			Help: "Amount refunded by committed returns",
		}),
		SaleErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saleledger_sale_errors_total",
				Help: "Total number of internal sale errors by type",
			},
			[]string{"error_type"},
		),

		// Stock metrics
		StockAdjustments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saleledger_stock_adjustments_total",
				Help: "Total stock adjustments by cause",
			},
			[]string{"cause"},
		),
		StockUnderflows: factory.NewCounter(prometheus.CounterOpts{
			Name: "saleledger_stock_underflows_total",
			Help: "Stock adjustments refused because quantity would go negative",
		}),

		// Report metrics
		ReportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "saleledger_report_duration_seconds",
				Help:    "Report computation duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"report"},
		),
		ReportCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saleledger_report_cache_total",
				Help: "Report cache lookups by result",
			},
			[]string{"report", "result"},
		),

		// API metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saleledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "saleledger_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Outbox metrics
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saleledger_events_published_total",
				Help: "Outbox events published by type",
			},
			[]string{"event_type"},
		),
		EventErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saleledger_event_errors_total",
				Help: "Outbox events that failed to publish",
			},
			[]string{"event_type"},
		),

		// Rate limiting metrics
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saleledger_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"ip"},
		),

		// Audit metrics
		AuditEntriesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saleledger_audit_entries_total",
				Help: "Total audit entries created",
			},
			[]string{"action", "status"},
		),
	}
}
