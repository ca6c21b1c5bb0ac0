package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpAdapter "github.com/iho/saleledger/internal/adapter/http"
	"github.com/iho/saleledger/internal/adapter/http/handler"
	"github.com/iho/saleledger/internal/adapter/http/middleware"
	"github.com/iho/saleledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/saleledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/saleledger/internal/adapter/repository/redis"
	sqliteRepo "github.com/iho/saleledger/internal/adapter/repository/sqlite"
	"github.com/iho/saleledger/internal/infrastructure/config"
	"github.com/iho/saleledger/internal/infrastructure/eventpublisher"
	"github.com/iho/saleledger/internal/infrastructure/metrics"
	"github.com/iho/saleledger/internal/infrastructure/postgres"
	"github.com/iho/saleledger/internal/infrastructure/redis"
	"github.com/iho/saleledger/internal/infrastructure/sqlite"
	"github.com/iho/saleledger/internal/usecase"
)

var errUnknownDriver = errors.New("unknown storage driver")

// storage is one backend's implementation of the repository ports.
type storage struct {
	txManager usecase.TransactionManager
	products  usecase.ProductRepository
	sales     usecase.SaleRepository
	audit     usecase.AuditRepository
	outbox    usecase.OutboxRepository
	retrier   usecase.Retrier
	ping      handler.Pinger
	close     func()
}

// app is the wired service.
type app struct {
	router      http.Handler
	publisher   *eventpublisher.EventPublisher
	rateLimiter *middleware.RateLimiter
	closers     []func() error
}

// Close releases storage, Redis and the event sink in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func openStorage(ctx context.Context, cfg *config.Config, l zerolog.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, l); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}

		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		l.Info().Msg("connected to postgres")

		return postgresStorage(pool, l), nil

	case config.StorageSQLite:
		db, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLitePath, BusyTimeout: cfg.DatabaseTimeout})
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}

		if err := sqlite.Migrate(db, l); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		l.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite database")

		return sqliteStorage(db), nil

	case config.StorageMemory:
		l.Warn().Msg("using in-memory storage; the ledger is lost on exit")
		return memoryStorage(memory.NewStore()), nil
	}

	return nil, fmt.Errorf("%w %q", errUnknownDriver, cfg.StorageDriver)
}

func postgresStorage(pool *pgxpool.Pool, l zerolog.Logger) *storage {
	return &storage{
		txManager: postgresRepo.NewTxManager(pool),
		products:  postgresRepo.NewProductRepository(pool),
		sales:     postgresRepo.NewSaleRepository(pool),
		audit:     postgresRepo.NewAuditRepository(pool),
		outbox:    postgresRepo.NewOutboxRepository(pool),
		retrier:   postgresRepo.NewRetrier(postgresRepo.WithRetrierLogger(l)),
		ping:      pool.Ping,
		close:     pool.Close,
	}
}

func sqliteStorage(db *sql.DB) *storage {
	return &storage{
		txManager: sqliteRepo.NewTxManager(db),
		products:  sqliteRepo.NewProductRepository(db),
		sales:     sqliteRepo.NewSaleRepository(db),
		audit:     sqliteRepo.NewAuditRepository(db),
		outbox:    sqliteRepo.NewOutboxRepository(db),
		ping:      db.PingContext,
		close:     func() { db.Close() },
	}
}

func memoryStorage(store *memory.Store) *storage {
	return &storage{
		txManager: memory.NewTxManager(store),
		products:  memory.NewProductRepository(store),
		sales:     memory.NewSaleRepository(store),
		audit:     memory.NewAuditRepository(store),
		outbox:    memory.NewOutboxRepository(store),
		ping:      store.Ping,
		close:     func() {},
	}
}

// newPublisher returns the outbox sink for cfg.EventPublisher, or nil for none.
func newPublisher(cfg *config.Config, l zerolog.Logger) (eventpublisher.Publisher, func() error) {
	switch cfg.EventPublisher {
	case config.PublisherKafka:
		kp := eventpublisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		return kp, kp.Close
	case config.PublisherLog:
		return eventpublisher.NewLogPublisher(l), func() error { return nil }
	default:
		return nil, func() error { return nil }
	}
}

func newApp(ctx context.Context, cfg *config.Config, l zerolog.Logger) (*app, error) {
	loc, err := cfg.ReportLocation()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewWithRegistry(registry)

	st, err := openStorage(ctx, cfg, l)
	if err != nil {
		return nil, err
	}

	a := &app{closers: []func() error{func() error { st.close(); return nil }}}

	health := handler.NewHealthHandler().WithCheck(cfg.StorageDriver, st.ping)

	var (
		redisClient *goredis.Client
		reportOpts  = []usecase.ReportOption{
			usecase.WithReportLocation(loc),
			usecase.WithReportLogger(l),
		}
		idempotency usecase.IdempotencyStore
	)

	redisCfg := redis.Config{URL: cfg.RedisURL}
	if redisCfg.Enabled() {
		redisClient, err = redis.NewClient(ctx, redisCfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, redisClient.Close)
		l.Info().Msg("connected to redis")

		reportOpts = append(reportOpts, usecase.WithReportCache(redisRepo.NewCache(redisClient), cfg.ReportCacheTTL))
		idempotency = redisRepo.NewIdempotencyStore(redisClient)
		health.WithCheck("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	idGen := postgresRepo.NewULIDGenerator()

	saleUC := usecase.NewSaleUseCase(st.txManager, st.products, st.sales, st.outbox, st.audit, idGen, st.retrier, m,
		usecase.WithSaleLogger(l))
	catalogUC := usecase.NewCatalogUseCase(st.txManager, st.products, st.outbox, st.audit, idGen, m,
		usecase.WithCatalogLogger(l))
	reportUC := usecase.NewReportUseCase(st.sales, m, reportOpts...)
	auditUC := usecase.NewAuditUseCase(st.audit, idGen, m)
	reconciliationUC := usecase.NewReconciliationUseCase(st.products, st.sales, l)

	if cfg.RateLimitRPS > 0 {
		a.rateLimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)
	}

	a.router = httpAdapter.NewRouter(httpAdapter.RouterConfig{
		SaleHandler:      handler.NewSaleHandler(saleUC, loc),
		ProductHandler:   handler.NewProductHandler(catalogUC),
		ReportHandler:    handler.NewReportHandler(reportUC, loc),
		AuditHandler:     handler.NewAuditHandler(auditUC),
		LedgerHandler:    handler.NewLedgerHandler(reconciliationUC),
		HealthHandler:    health,
		IdempotencyStore: idempotency,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		RateLimiter:      a.rateLimiter,
		Metrics:          m,
		MetricsHandler:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:           l,
		AllowedOrigins:   cfg.CORSAllowedOrigins,
	})

	if sink, closeSink := newPublisher(cfg, l); sink != nil {
		a.closers = append(a.closers, closeSink)
		a.publisher = eventpublisher.NewEventPublisher(eventpublisher.Config{
			OutboxRepo: st.outbox,
			Publisher:  sink,
			Metrics:    m,
			Logger:     l,
			Interval:   cfg.OutboxInterval,
			Retention:  7 * 24 * time.Hour,
		})
	}

	return a, nil
}
