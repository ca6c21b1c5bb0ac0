package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/saleledger/internal/adapter/http/handler"
	"github.com/iho/saleledger/internal/adapter/http/middleware"
	"github.com/iho/saleledger/internal/infrastructure/metrics"
	"github.com/iho/saleledger/internal/usecase"
)

// RouterConfig holds dependencies for the router. Optional pieces are
// skipped when nil.
type RouterConfig struct {
	SaleHandler    *handler.SaleHandler
	ProductHandler *handler.ProductHandler
	ReportHandler  *handler.ReportHandler
	AuditHandler   *handler.AuditHandler
	LedgerHandler  *handler.LedgerHandler
	HealthHandler  *handler.HealthHandler

	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter
	Metrics          *metrics.Metrics
	MetricsHandler   http.Handler // defaults to promhttp.Handler()
	Logger           zerolog.Logger
	AllowedOrigins   []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.Tracing)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Metrics(cfg.Metrics))

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", middleware.ActorHeader, middleware.IdempotencyKeyHeader},
			ExposedHeaders:   []string{middleware.RequestIDHeader, middleware.IdempotencyReplayHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Limit)
		}

		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL).Wrap)
		}

		r.Route("/sales", func(r chi.Router) {
			r.Post("/", cfg.SaleHandler.Commit)
			r.Get("/", cfg.SaleHandler.List)
			r.Get("/{id}", cfg.SaleHandler.Get)
			r.Post("/{id}/returns", cfg.SaleHandler.Return)
		})

		r.Route("/products", func(r chi.Router) {
			r.Post("/", cfg.ProductHandler.Create)
			r.Post("/batch", cfg.ProductHandler.BatchCreate)
			r.Get("/", cfg.ProductHandler.List)
			r.Get("/{id}", cfg.ProductHandler.Get)
			r.Put("/{id}/price", cfg.ProductHandler.UpdatePrice)
			r.Post("/{id}/stock", cfg.ProductHandler.AdjustStock)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/daily", cfg.ReportHandler.Daily)
			r.Get("/monthly", cfg.ReportHandler.Monthly)
			r.Get("/products/{id}", cfg.ReportHandler.Product)
			r.Get("/payment-methods", cfg.ReportHandler.PaymentMethods)
			r.Get("/installments", cfg.ReportHandler.Installments)
		})

		r.Get("/audit", cfg.AuditHandler.List)
		r.Post("/audit", cfg.AuditHandler.Record)
		r.Get("/ledger/consistency", cfg.LedgerHandler.Consistency)
	})

	return r
}
