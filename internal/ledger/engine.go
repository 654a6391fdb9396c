// Package ledger implements the fundraising state engine: campaigns, pools,
// refunds, the pause gate and the time-locked emergency withdrawal.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"crowdfund-ledger/internal/auth"
	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/observability"
	"crowdfund-ledger/internal/storage"
	"crowdfund-ledger/internal/token"
)

// Time windows, in seconds.
const (
	// RefundGracePeriod is how long after a pool deadline refunds stay closed.
	RefundGracePeriod uint64 = 604800
	// EmergencyWithdrawalDelay is the lock between request and execution.
	EmergencyWithdrawalDelay uint64 = 86400
)

// Clock supplies the current time in unix seconds.
type Clock interface {
	Now() uint64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint64

// Now implements Clock.
func (f ClockFunc) Now() uint64 { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(func() uint64 { return uint64(time.Now().Unix()) })

// ManualClock is a settable clock for tests and scenario replay.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

// NewManualClock creates a clock frozen at now.
func NewManualClock(now uint64) *ManualClock {
	return &ManualClock{now: now}
}

// Now implements Clock.
func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to now.
func (c *ManualClock) Set(now uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

// Engine executes ledger operations. Mutating operations are serialized; reads
// run concurrently against the store.
type Engine struct {
	mu sync.Mutex

	store   storage.Store
	gateway token.Gateway
	vault   domain.Address

	sink   events.Sink
	authz  auth.Authorizer
	clock  Clock
	logger *zap.Logger
}

// Option configures Engine.
type Option func(*Engine)

// WithSink sets the event sink. Default discards events.
func WithSink(s events.Sink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithAuthorizer sets the authorizer. Default is auth.Trusted.
func WithAuthorizer(a auth.Authorizer) Option {
	return func(e *Engine) {
		e.authz = a
	}
}

// WithClock sets the clock. Default is SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine. vault is the account that holds every donated amount.
func New(store storage.Store, gateway token.Gateway, vault domain.Address, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		gateway: gateway,
		vault:   vault,
		sink:    events.Discard,
		authz:   auth.Trusted{},
		clock:   SystemClock,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Vault returns the account holding donated funds.
func (e *Engine) Vault() domain.Address {
	return e.vault
}

// Now returns the engine clock reading.
func (e *Engine) Now() uint64 {
	return e.clock.Now()
}

// transfer is one completed gateway movement.
type transfer struct {
	asset, from, to domain.Address
	amount          domain.Amount
}

// mutation collects the side effects of one operation while its transaction is open.
type mutation struct {
	e      *Engine
	now    uint64
	events []events.Event
	moved  []transfer
}

// emit queues an event for publication after commit.
func (m *mutation) emit(topic string, attrs map[string]string) {
	m.events = append(m.events, events.New(topic, m.now, attrs))
}

// transfer moves funds through the gateway and remembers the movement so it can
// be reversed if the transaction later fails.
func (m *mutation) transfer(ctx context.Context, asset, from, to domain.Address, amount domain.Amount) error {
	if err := m.e.gateway.Transfer(ctx, asset, from, to, amount); err != nil {
		return ErrTokenTransferFailed.wrap(err)
	}
	m.moved = append(m.moved, transfer{asset: asset, from: from, to: to, amount: amount})
	return nil
}

// mutate runs fn in one store transaction under the engine lock.
// Events are published only after commit. When the transaction fails after
// funds moved, the movements are reversed.
func (e *Engine) mutate(ctx context.Context, op string, fn func(ctx context.Context, tx storage.Tx, m *mutation) error) error {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	m := &mutation{e: e, now: e.clock.Now()}
	err := e.store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, tx, m)
	})

	if err != nil {
		if len(m.moved) > 0 {
			e.compensate(ctx, op, m.moved)
		}
		e.observe(op, start, err)
		return err
	}

	for _, ev := range m.events {
		perr := e.sink.Publish(ctx, ev)
		observability.RecordEventPublished(ev.Topic, perr)
		if perr != nil {
			e.logger.Error("publish event",
				zap.String("op", op),
				zap.String("topic", ev.Topic),
				zap.Stringer("event_id", ev.ID),
				zap.Error(perr))
		}
	}

	e.observe(op, start, nil)
	return nil
}

// compensate reverses completed transfers, newest first.
func (e *Engine) compensate(ctx context.Context, op string, moved []transfer) {
	ctx = context.WithoutCancel(ctx)
	for i := len(moved) - 1; i >= 0; i-- {
		t := moved[i]
		err := e.gateway.Transfer(ctx, t.asset, t.to, t.from, t.amount)
		observability.RecordCompensation(err)
		if err != nil {
			e.logger.Error("compensating transfer failed",
				zap.String("op", op),
				zap.String("asset", t.asset.String()),
				zap.String("from", t.to.String()),
				zap.String("to", t.from.String()),
				zap.String("amount", t.amount.String()),
				zap.Error(err))
			continue
		}
		e.logger.Warn("reversed transfer after failed commit",
			zap.String("op", op),
			zap.String("asset", t.asset.String()),
			zap.String("amount", t.amount.String()))
	}
}

func (e *Engine) observe(op string, start time.Time, err error) {
	elapsed := time.Since(start)
	if err == nil {
		observability.RecordOperation(op, "ok", elapsed.Seconds())
		e.logger.Debug("operation committed", zap.String("op", op), zap.Duration("elapsed", elapsed))
		return
	}

	if code, ok := CodeOf(err); ok {
		observability.RecordOperation(op, string(code), elapsed.Seconds())
		e.logger.Info("operation rejected",
			zap.String("op", op),
			zap.String("code", string(code)),
			zap.String("category", code.Category().String()),
			zap.Error(err))
		return
	}

	observability.RecordOperation(op, "error", elapsed.Seconds())
	e.logger.Error("operation failed", zap.String("op", op), zap.Error(err))
}

// view runs fn in a read-only transaction.
func (e *Engine) view(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return e.store.View(ctx, fn)
}

// authorize checks that caller may act as required.
func (e *Engine) authorize(ctx context.Context, caller auth.Caller, required domain.Address, action auth.Action) error {
	if err := e.authz.Authorize(ctx, caller, required, action); err != nil {
		return ErrUnauthorized.wrap(err)
	}
	return nil
}

// loadSettings reads the settings record.
func loadSettings(ctx context.Context, tx storage.Tx) (*domain.Settings, error) {
	s, err := tx.Settings().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// requireNotPaused is the pause gate run first by every user mutating operation.
func requireNotPaused(ctx context.Context, tx storage.Tx) (*domain.Settings, error) {
	s, err := loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	if s.Paused {
		return nil, ErrContractPaused
	}
	return s, nil
}

// requireAdmin loads the settings and checks that caller is the admin.
func (e *Engine) requireAdmin(ctx context.Context, tx storage.Tx, caller auth.Caller, action auth.Action) (*domain.Settings, error) {
	s, err := loadSettings(ctx, tx)
	if err != nil {
		return nil, err
	}
	if !s.IsInitialized() {
		return nil, ErrNotInitialized
	}
	if err := e.authorize(ctx, caller, s.Admin, action); err != nil {
		return nil, err
	}
	return s, nil
}

// notFound maps storage.ErrNotFound onto sentinel and wraps anything else.
func notFound(err error, sentinel *Error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return sentinel
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
