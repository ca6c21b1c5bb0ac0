package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from holding product locks
	DefaultTransactionTimeout = 10 * time.Second

	// DefaultReportCacheTTL is how long closed-period reports stay cached
	DefaultReportCacheTTL = 1 * time.Hour

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	tracerName = "github.com/iho/saleledger/internal/usecase"
)
