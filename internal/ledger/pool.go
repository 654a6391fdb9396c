package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"crowdfund-ledger/internal/auth"
	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/storage"
)

// SavePoolParams describes a pool created from an absolute deadline.
// RequiredSignatures and Signers must be given together or not at all.
type SavePoolParams struct {
	Name               string
	Metadata           domain.PoolMetadata
	TargetAmount       domain.Amount
	Deadline           uint64 // unix seconds, must be in the future
	RequiredSignatures *uint32
	Signers            []domain.Address
}

// maxPoolDeadline is the latest deadline whose refund window still fits in
// a signed 64-bit column.
const maxPoolDeadline uint64 = math.MaxInt64 - RefundGracePeriod

// validatePoolConfig returns the first structural problem with cfg for a pool
// created at now.
func validatePoolConfig(cfg domain.PoolConfig, now uint64) error {
	if cfg.Name == "" {
		return ErrInvalidPoolName
	}
	if !cfg.TargetAmount.IsPositive() {
		return ErrInvalidPoolTarget
	}
	if cfg.Duration == 0 || now > maxPoolDeadline || cfg.Duration > maxPoolDeadline-now {
		return ErrInvalidPoolDeadline
	}
	return nil
}

// CreatePool creates a pool from a duration-based config and returns its id.
func (e *Engine) CreatePool(ctx context.Context, caller auth.Caller, cfg domain.PoolConfig) (uint64, error) {
	creator := caller.Address
	action := auth.NewAction("create_pool",
		cfg.Name, cfg.TargetAmount.String(), strconv.FormatBool(cfg.IsPrivate), u64(cfg.Duration))

	var id uint64
	err := e.mutate(ctx, "create_pool", func(ctx context.Context, tx storage.Tx, m *mutation) error {
		if _, err := requireNotPaused(ctx, tx); err != nil {
			return err
		}
		if err := e.authorize(ctx, caller, creator, action); err != nil {
			return err
		}
		if err := validatePoolConfig(cfg, m.now); err != nil {
			return err
		}

		metadata := domain.PoolMetadata{Description: cfg.Description}
		if !metadata.WithinBounds() {
			return ErrInvalidMetadata
		}

		pool := &domain.Pool{
			Name:         cfg.Name,
			TargetAmount: cfg.TargetAmount,
			IsPrivate:    cfg.IsPrivate,
			Duration:     cfg.Duration,
			CreatedAt:    m.now,
		}
		var err error
		id, err = e.insertPool(ctx, tx, m, creator, pool, &metadata, nil)
		return err
	})
	return id, err
}

// SavePool creates a pool from an absolute deadline with metadata and an
// optional multi-sig config, and returns its id.
func (e *Engine) SavePool(ctx context.Context, caller auth.Caller, p SavePoolParams) (uint64, error) {
	creator := caller.Address
	action := auth.NewAction("save_pool", savePoolArgs(p)...)

	var id uint64
	err := e.mutate(ctx, "save_pool", func(ctx context.Context, tx storage.Tx, m *mutation) error {
		if _, err := requireNotPaused(ctx, tx); err != nil {
			return err
		}
		if err := e.authorize(ctx, caller, creator, action); err != nil {
			return err
		}

		if p.Name == "" {
			return ErrInvalidPoolName
		}
		if !p.TargetAmount.IsPositive() {
			return ErrInvalidPoolTarget
		}
		if p.Deadline <= m.now || p.Deadline > maxPoolDeadline {
			return ErrInvalidPoolDeadline
		}
		if !p.Metadata.WithinBounds() {
			return ErrInvalidMetadata
		}

		multiSig, err := multiSigFromParams(p.RequiredSignatures, p.Signers)
		if err != nil {
			return err
		}

		pool := &domain.Pool{
			Name:         p.Name,
			TargetAmount: p.TargetAmount,
			Duration:     p.Deadline - m.now,
			CreatedAt:    m.now,
		}
		metadata := p.Metadata
		id, err = e.insertPool(ctx, tx, m, creator, pool, &metadata, multiSig)
		return err
	})
	return id, err
}

// multiSigFromParams enforces both-or-none and 0 < required <= len(signers).
func multiSigFromParams(required *uint32, signers []domain.Address) (*domain.MultiSigConfig, error) {
	switch {
	case required == nil && signers == nil:
		return nil, nil
	case required == nil || signers == nil:
		return nil, ErrInvalidMultiSigConfig
	}

	cfg := &domain.MultiSigConfig{RequiredSignatures: *required, Signers: signers}
	if cfg.RequiredSignatures == 0 || int(cfg.RequiredSignatures) > len(cfg.Signers) {
		return nil, ErrInvalidMultiSigConfig
	}
	if len(cfg.Signers) == 0 {
		return nil, ErrInvalidSignerCount
	}
	return cfg, nil
}

// insertPool assigns the next id and writes every record a new pool owns.
func (e *Engine) insertPool(ctx context.Context, tx storage.Tx, m *mutation, creator domain.Address,
	pool *domain.Pool, metadata *domain.PoolMetadata, multiSig *domain.MultiSigConfig) (uint64, error) {
	id, err := tx.Settings().AllocatePoolID(ctx)
	if err != nil {
		return 0, fmt.Errorf("allocate pool id: %w", err)
	}
	pool.ID = id

	if err := tx.Pools().Insert(ctx, pool); err != nil {
		return 0, fmt.Errorf("insert pool: %w", err)
	}
	if err := tx.Pools().PutState(ctx, id, domain.PoolActive); err != nil {
		return 0, fmt.Errorf("put pool state: %w", err)
	}
	if err := tx.Pools().PutMetrics(ctx, id, &domain.PoolMetrics{}); err != nil {
		return 0, fmt.Errorf("put pool metrics: %w", err)
	}
	if err := tx.Pools().PutMetadata(ctx, id, metadata); err != nil {
		return 0, fmt.Errorf("put pool metadata: %w", err)
	}
	if multiSig != nil {
		if err := tx.Pools().PutMultiSig(ctx, id, multiSig); err != nil {
			return 0, fmt.Errorf("put multisig: %w", err)
		}
	}

	m.emit(events.TopicPoolCreated, map[string]string{
		"pool_id":       u64(id),
		"name":          pool.Name,
		"description":   metadata.Description,
		"creator":       creator.String(),
		"target_amount": pool.TargetAmount.String(),
		"deadline":      u64(pool.Deadline()),
	})
	return id, nil
}

// UpdatePoolState moves a pool along the general transition path.
// Completed and Cancelled pools never change here; Closed is reachable only through ClosePool.
func (e *Engine) UpdatePoolState(ctx context.Context, poolID uint64, next domain.PoolState) error {
	return e.mutate(ctx, "update_pool_state", func(ctx context.Context, tx storage.Tx, m *mutation) error {
		if _, err := requireNotPaused(ctx, tx); err != nil {
			return err
		}

		current, err := poolState(ctx, tx, poolID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(current, next, domain.ViaStateUpdate) {
			return ErrInvalidPoolState.wrap(fmt.Errorf("%s -> %s", current, next))
		}

		if err := tx.Pools().PutState(ctx, poolID, next); err != nil {
			return fmt.Errorf("put pool state: %w", err)
		}
		m.emit(events.TopicPoolStateUpdated, map[string]string{
			"pool_id": u64(poolID),
			"state":   next.String(),
		})
		return nil
	})
}

// ClosePool moves a Disbursed or Cancelled pool to Closed. Admin only.
func (e *Engine) ClosePool(ctx context.Context, caller auth.Caller, poolID uint64) error {
	action := auth.NewAction("close_pool", u64(poolID))

	return e.mutate(ctx, "close_pool", func(ctx context.Context, tx storage.Tx, m *mutation) error {
		if err := e.authorize(ctx, caller, caller.Address, action); err != nil {
			return err
		}

		current, err := poolState(ctx, tx, poolID)
		if err != nil {
			return err
		}
		if current == domain.PoolClosed {
			return ErrPoolAlreadyClosed
		}
		if !domain.CanTransition(current, domain.PoolClosed, domain.ViaClose) {
			return ErrPoolNotDisbursedOrRefunded
		}

		s, err := loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		if !s.IsInitialized() {
			return ErrNotInitialized
		}
		if caller.Address != s.Admin {
			return ErrUnauthorized
		}

		if err := tx.Pools().PutState(ctx, poolID, domain.PoolClosed); err != nil {
			return fmt.Errorf("put pool state: %w", err)
		}
		m.emit(events.TopicPoolClosed, map[string]string{
			"pool_id":   u64(poolID),
			"closed_by": caller.Address.String(),
		})
		return nil
	})
}

// IsClosed reports whether a pool is Closed.
func (e *Engine) IsClosed(ctx context.Context, poolID uint64) (bool, error) {
	state, err := e.GetPoolState(ctx, poolID)
	if err != nil {
		return false, err
	}
	return state == domain.PoolClosed, nil
}

// Contribute moves amount of asset from the caller into the vault for an Active pool.
func (e *Engine) Contribute(ctx context.Context, caller auth.Caller, poolID uint64, asset domain.Address, amount domain.Amount, isPrivate bool) error {
	contributor := caller.Address
	action := auth.NewAction("contribute",
		u64(poolID), asset.String(), amount.String(), strconv.FormatBool(isPrivate))

	return e.mutate(ctx, "contribute", func(ctx context.Context, tx storage.Tx, m *mutation) error {
		if _, err := requireNotPaused(ctx, tx); err != nil {
			return err
		}
		if err := e.authorize(ctx, caller, contributor, action); err != nil {
			return err
		}
		if !amount.IsPositive() {
			return ErrInvalidAmount
		}

		state, err := poolState(ctx, tx, poolID)
		if err != nil {
			return err
		}
		if state != domain.PoolActive {
			return ErrInvalidPoolState.wrap(fmt.Errorf("pool is %s", state))
		}

		metrics, err := poolMetrics(ctx, tx, poolID)
		if err != nil {
			return err
		}

		record, err := tx.Pools().GetContribution(ctx, poolID, contributor)
		if errors.Is(err, storage.ErrNotFound) {
			record = &domain.PoolContribution{PoolID: poolID, Contributor: contributor, Asset: asset}
		} else if err != nil {
			return fmt.Errorf("get pool contribution: %w", err)
		}

		// A positive balance is refunded in one asset, so it cannot mix assets.
		if record.Amount.IsPositive() && record.Asset != asset {
			return ErrTokenTransferFailed.wrap(fmt.Errorf("existing contribution is in %s, got %s", record.Asset, asset))
		}

		if record.Amount.IsZero() {
			metrics.ContributorCount++
		}
		if metrics.TotalRaised, err = metrics.TotalRaised.Add(amount); err != nil {
			return arith(err)
		}
		metrics.LastDonationAt = m.now
		if record.Amount, err = record.Amount.Add(amount); err != nil {
			return arith(err)
		}
		record.Asset = asset

		if err := tx.Pools().PutMetrics(ctx, poolID, metrics); err != nil {
			return fmt.Errorf("put pool metrics: %w", err)
		}
		if err := tx.Pools().PutContribution(ctx, record); err != nil {
			return fmt.Errorf("put pool contribution: %w", err)
		}

		if err := m.transfer(ctx, asset, contributor, e.vault, amount); err != nil {
			return err
		}

		m.emit(events.TopicContribution, map[string]string{
			"pool_id":     u64(poolID),
			"contributor": contributor.String(),
			"asset":       asset.String(),
			"amount":      amount.String(),
			"is_private":  strconv.FormatBool(isPrivate),
		})
		return nil
	})
}

// GetPool returns a pool. PoolNotFound when absent.
func (e *Engine) GetPool(ctx context.Context, poolID uint64) (*domain.Pool, error) {
	var out *domain.Pool
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		p, err := tx.Pools().Get(ctx, poolID)
		if err != nil {
			return notFound(err, ErrPoolNotFound, "pool")
		}
		out = p
		return nil
	})
	return out, err
}

// GetPoolMetadata returns pool metadata, empty strings when none was stored.
func (e *Engine) GetPoolMetadata(ctx context.Context, poolID uint64) (*domain.PoolMetadata, error) {
	out := &domain.PoolMetadata{}
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		md, err := tx.Pools().GetMetadata(ctx, poolID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get pool metadata: %w", err)
		}
		out = md
		return nil
	})
	return out, err
}

// GetPoolState returns the pool state.
func (e *Engine) GetPoolState(ctx context.Context, poolID uint64) (domain.PoolState, error) {
	var state domain.PoolState
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		state, err = poolState(ctx, tx, poolID)
		return err
	})
	return state, err
}

// GetPoolMetrics returns the aggregate metrics of a pool.
func (e *Engine) GetPoolMetrics(ctx context.Context, poolID uint64) (*domain.PoolMetrics, error) {
	var out *domain.PoolMetrics
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = poolMetrics(ctx, tx, poolID)
		return err
	})
	return out, err
}

// GetPoolContribution returns one contributor's record, zero-valued when absent.
func (e *Engine) GetPoolContribution(ctx context.Context, poolID uint64, contributor domain.Address) (*domain.PoolContribution, error) {
	var out *domain.PoolContribution
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.Pools().Get(ctx, poolID); err != nil {
			return notFound(err, ErrPoolNotFound, "pool")
		}
		c, err := tx.Pools().GetContribution(ctx, poolID, contributor)
		if errors.Is(err, storage.ErrNotFound) {
			out = &domain.PoolContribution{PoolID: poolID, Contributor: contributor}
			return nil
		}
		if err != nil {
			return fmt.Errorf("get pool contribution: %w", err)
		}
		out = c
		return nil
	})
	return out, err
}

// GetMultiSigConfig returns the pool's multi-sig config, nil when none was set.
func (e *Engine) GetMultiSigConfig(ctx context.Context, poolID uint64) (*domain.MultiSigConfig, error) {
	var out *domain.MultiSigConfig
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.Pools().Get(ctx, poolID); err != nil {
			return notFound(err, ErrPoolNotFound, "pool")
		}
		ms, err := tx.Pools().GetMultiSig(ctx, poolID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get multisig: %w", err)
		}
		out = ms
		return nil
	})
	return out, err
}

// poolState checks the pool exists and returns its state, Active when none is stored.
func poolState(ctx context.Context, tx storage.Tx, poolID uint64) (domain.PoolState, error) {
	if _, err := tx.Pools().Get(ctx, poolID); err != nil {
		return 0, notFound(err, ErrPoolNotFound, "pool")
	}
	state, err := tx.Pools().GetState(ctx, poolID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.PoolActive, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get pool state: %w", err)
	}
	return state, nil
}

// poolMetrics returns the pool metrics, zero when none are stored.
func poolMetrics(ctx context.Context, tx storage.Tx, poolID uint64) (*domain.PoolMetrics, error) {
	if _, err := tx.Pools().Get(ctx, poolID); err != nil {
		return nil, notFound(err, ErrPoolNotFound, "pool")
	}
	m, err := tx.Pools().GetMetrics(ctx, poolID)
	if errors.Is(err, storage.ErrNotFound) {
		return &domain.PoolMetrics{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pool metrics: %w", err)
	}
	return m, nil
}

func savePoolArgs(p SavePoolParams) []string {
	required := ""
	if p.RequiredSignatures != nil {
		required = strconv.FormatUint(uint64(*p.RequiredSignatures), 10)
	}
	signers := make([]string, len(p.Signers))
	for i, s := range p.Signers {
		signers[i] = s.String()
	}
	return []string{
		p.Name,
		p.Metadata.Description,
		p.Metadata.ExternalURL,
		p.Metadata.ImageHash,
		p.TargetAmount.String(),
		u64(p.Deadline),
		required,
		strings.Join(signers, ","),
	}
}
