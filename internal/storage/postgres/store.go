package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/observability"
	"crowdfund-ledger/internal/storage"
)

// ledgerLockKey is the transaction-scoped advisory lock taken by every Update,
// so writers in separate processes sharing one database also serialize.
const ledgerLockKey int64 = 0x63726f776466756e

// Store implements storage.Store on PostgreSQL. Every Update is one database
// transaction; every View is a read-only one.
type Store struct {
	pool *Pool
}

// NewStore creates a Store over pool. The schema must already be migrated.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ storage.Store          = (*Store)(nil)
	_ storage.Tx             = (*tx)(nil)
	_ storage.SettingsStore  = (*settingsStore)(nil)
	_ storage.CampaignStore  = (*campaignStore)(nil)
	_ storage.PoolStore      = (*poolStore)(nil)
	_ storage.EmergencyStore = (*emergencyStore)(nil)
)

// Update runs fn in a serializable read-write transaction holding the ledger lock.
// A transaction aborted by a concurrent one fails with storage.ErrConflict.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) (err error) {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = pgTx.Rollback(context.WithoutCancel(ctx))
			panic(r)
		}
	}()

	t := &tx{tx: pgTx}
	if _, err := t.exec(ctx, "advisory_lock", `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
		_ = pgTx.Rollback(context.WithoutCancel(ctx))
		return fmt.Errorf("acquire ledger lock: %w", err)
	}

	if err := fn(ctx, t); err != nil {
		_ = pgTx.Rollback(context.WithoutCancel(ctx))
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return classify("commit tx", err)
	}
	return nil
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() { _ = pgTx.Rollback(context.WithoutCancel(ctx)) }()

	return fn(ctx, &tx{tx: pgTx, readOnly: true})
}

// tx adapts one pgx transaction to storage.Tx.
type tx struct {
	tx       pgx.Tx
	readOnly bool
}

func (t *tx) Settings() storage.SettingsStore   { return &settingsStore{tx: t} }
func (t *tx) Campaigns() storage.CampaignStore  { return &campaignStore{tx: t} }
func (t *tx) Pools() storage.PoolStore          { return &poolStore{tx: t} }
func (t *tx) Emergency() storage.EmergencyStore { return &emergencyStore{tx: t} }

func (t *tx) writable() error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	return nil
}

// exec runs a statement and records its latency.
func (t *tx) exec(ctx context.Context, op, sql string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	tag, err := t.tx.Exec(ctx, sql, args...)
	observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), err)
	return tag, err
}

// write is exec for statements that modify state.
func (t *tx) write(ctx context.Context, op, sql string, args ...any) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.exec(ctx, op, sql, args...); err != nil {
		return classify(op, err)
	}
	return nil
}

// queryRow runs a single-row query; latency is recorded when the row is scanned.
func (t *tx) queryRow(ctx context.Context, op, sql string, args ...any) pgx.Row {
	return timedRow{row: t.tx.QueryRow(ctx, sql, args...), op: op, start: time.Now()}
}

type timedRow struct {
	row   pgx.Row
	op    string
	start time.Time
}

func (r timedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	recorded := err
	if isNotFoundError(err) {
		recorded = nil
	}
	observability.RecordDBQuery("postgres", r.op, time.Since(r.start).Seconds(), recorded)
	return err
}

// scanErr maps pgx.ErrNoRows to storage.ErrNotFound and wraps anything else.
func scanErr(op string, err error) error {
	if isNotFoundError(err) {
		return storage.ErrNotFound
	}
	return classify(op, err)
}

// bigint converts an unsigned value for a BIGINT column.
func bigint(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d exceeds bigint", storage.ErrInvalidInput, v)
	}
	return int64(v), nil
}

// unsigned converts a BIGINT column back.
func unsigned(v int64) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("negative value %d in unsigned column", v)
	}
	return uint64(v), nil
}

// amount parses a NUMERIC column selected as text.
func amount(text string) (domain.Amount, error) {
	a, err := domain.ParseAmount(text)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("decode amount: %w", err)
	}
	return a, nil
}

// campaignID decodes a BYTEA campaign id.
func campaignID(raw []byte) (domain.CampaignID, error) {
	var id domain.CampaignID
	if len(raw) != len(id) {
		return id, fmt.Errorf("campaign id has %d bytes", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func addresses(in []string) []domain.Address {
	if in == nil {
		return nil
	}
	out := make([]domain.Address, len(in))
	for i, s := range in {
		out[i] = domain.Address(s)
	}
	return out
}

func strs(in []domain.Address) []string {
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = string(a)
	}
	return out
}

var errCorruptRow = errors.New("corrupt row")
