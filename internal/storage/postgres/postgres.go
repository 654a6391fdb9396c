package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdfund-ledger/internal/storage"
)

// Pool defaults applied when the DSN leaves them unset.
const (
	applicationName = "crowdfund-ledger"

	// Writers serialize on one advisory lock.
	defaultMaxConns = 8

	// Ends sessions that sit in an open transaction, releasing the ledger lock.
	idleInTxTimeout = 30 * time.Second
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects to the ledger database.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	configurePool(config)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// configurePool fills in ledger defaults the DSN did not set.
func configurePool(config *pgxpool.Config) {
	params := config.ConnConfig.RuntimeParams
	if params["application_name"] == "" {
		params["application_name"] = applicationName
	}
	if params["idle_in_transaction_session_timeout"] == "" {
		params["idle_in_transaction_session_timeout"] = fmt.Sprint(idleInTxTimeout.Milliseconds())
	}
	if !strings.Contains(config.ConnString(), "pool_max_conns") {
		config.MaxConns = defaultMaxConns
	}
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

// PostgreSQL error codes
const (
	pgErrUniqueViolation      = "23505" // unique_violation
	pgErrSerializationFailure = "40001" // serialization_failure
	pgErrDeadlockDetected     = "40P01" // deadlock_detected
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	return pgCode(err) == pgErrUniqueViolation
}

// isConflictError reports whether the transaction was aborted by a concurrent one.
func isConflictError(err error) bool {
	switch pgCode(err) {
	case pgErrSerializationFailure, pgErrDeadlockDetected:
		return true
	}
	return false
}

// classify maps driver errors onto storage sentinels, wrapping with op.
func classify(op string, err error) error {
	switch {
	case isDuplicateKeyError(err):
		return storage.ErrDuplicateKey
	case isConflictError(err):
		return fmt.Errorf("%s: %w: %w", op, storage.ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
