package postgres

import (
	"context"
	"fmt"

	"crowdfund-ledger/internal/domain"
)

type poolStore struct {
	tx *tx
}

// Insert adds a new pool. Returns ErrDuplicateKey if the id exists.
func (s *poolStore) Insert(ctx context.Context, p *domain.Pool) error {
	id, err := bigint(p.ID)
	if err != nil {
		return err
	}
	duration, err := bigint(p.Duration)
	if err != nil {
		return err
	}
	createdAt, err := bigint(p.CreatedAt)
	if err != nil {
		return err
	}
	return s.tx.write(ctx, "insert_pool", `
		INSERT INTO pools (id, name, target_amount, is_private, duration, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
	`, id, p.Name, p.TargetAmount.String(), p.IsPrivate, duration, createdAt)
}

// Get retrieves a pool by id. Returns ErrNotFound if not exists.
func (s *poolStore) Get(ctx context.Context, id uint64) (*domain.Pool, error) {
	key, err := bigint(id)
	if err != nil {
		return nil, err
	}

	var (
		name, target        string
		isPrivate           bool
		duration, createdAt int64
	)
	err = s.tx.queryRow(ctx, "get_pool", `
		SELECT name, target_amount::text, is_private, duration, created_at
		FROM pools
		WHERE id = $1
	`, key).Scan(&name, &target, &isPrivate, &duration, &createdAt)
	if err != nil {
		return nil, scanErr("get pool", err)
	}

	t, err := amount(target)
	if err != nil {
		return nil, err
	}
	d, err := unsigned(duration)
	if err != nil {
		return nil, err
	}
	c, err := unsigned(createdAt)
	if err != nil {
		return nil, err
	}
	return &domain.Pool{ID: id, Name: name, TargetAmount: t, IsPrivate: isPrivate, Duration: d, CreatedAt: c}, nil
}

// GetState retrieves the pool state. Returns ErrNotFound if not exists.
func (s *poolStore) GetState(ctx context.Context, id uint64) (domain.PoolState, error) {
	key, err := bigint(id)
	if err != nil {
		return 0, err
	}
	var raw int16
	err = s.tx.queryRow(ctx, "get_pool_state",
		`SELECT state FROM pool_states WHERE pool_id = $1`, key).Scan(&raw)
	if err != nil {
		return 0, scanErr("get pool state", err)
	}
	state := domain.PoolState(raw)
	if raw < 0 || !state.IsValid() {
		return 0, fmt.Errorf("%w: pool state %d", errCorruptRow, raw)
	}
	return state, nil
}

// PutState inserts or replaces the pool state.
func (s *poolStore) PutState(ctx context.Context, id uint64, state domain.PoolState) error {
	key, err := bigint(id)
	if err != nil {
		return err
	}
	return s.tx.write(ctx, "put_pool_state", `
		INSERT INTO pool_states (pool_id, state) VALUES ($1, $2)
		ON CONFLICT (pool_id) DO UPDATE SET state = EXCLUDED.state
	`, key, int16(state))
}

// GetMetrics retrieves pool metrics. Returns ErrNotFound if not exists.
func (s *poolStore) GetMetrics(ctx context.Context, id uint64) (*domain.PoolMetrics, error) {
	key, err := bigint(id)
	if err != nil {
		return nil, err
	}
	var (
		total         string
		count, lastAt int64
	)
	err = s.tx.queryRow(ctx, "get_pool_metrics", `
		SELECT total_raised::text, contributor_count, last_donation_at
		FROM pool_metrics
		WHERE pool_id = $1
	`, key).Scan(&total, &count, &lastAt)
	if err != nil {
		return nil, scanErr("get pool metrics", err)
	}
	m, err := metrics(total, count, lastAt)
	if err != nil {
		return nil, err
	}
	return &domain.PoolMetrics{TotalRaised: m.TotalRaised, ContributorCount: m.ContributorCount, LastDonationAt: m.LastDonationAt}, nil
}

// PutMetrics inserts or replaces pool metrics.
func (s *poolStore) PutMetrics(ctx context.Context, id uint64, m *domain.PoolMetrics) error {
	key, err := bigint(id)
	if err != nil {
		return err
	}
	lastAt, err := bigint(m.LastDonationAt)
	if err != nil {
		return err
	}
	return s.tx.write(ctx, "put_pool_metrics", `
		INSERT INTO pool_metrics (pool_id, total_raised, contributor_count, last_donation_at)
		VALUES ($1, $2::numeric, $3, $4)
		ON CONFLICT (pool_id) DO UPDATE SET
			total_raised = EXCLUDED.total_raised,
			contributor_count = EXCLUDED.contributor_count,
			last_donation_at = EXCLUDED.last_donation_at
	`, key, m.TotalRaised.String(), int64(m.ContributorCount), lastAt)
}

// GetMetadata retrieves pool metadata. Returns ErrNotFound if not exists.
func (s *poolStore) GetMetadata(ctx context.Context, id uint64) (*domain.PoolMetadata, error) {
	key, err := bigint(id)
	if err != nil {
		return nil, err
	}
	var md domain.PoolMetadata
	err = s.tx.queryRow(ctx, "get_pool_metadata", `
		SELECT description, external_url, image_hash
		FROM pool_metadata
		WHERE pool_id = $1
	`, key).Scan(&md.Description, &md.ExternalURL, &md.ImageHash)
	if err != nil {
		return nil, scanErr("get pool metadata", err)
	}
	return &md, nil
}

// PutMetadata inserts or replaces pool metadata.
func (s *poolStore) PutMetadata(ctx context.Context, id uint64, md *domain.PoolMetadata) error {
	key, err := bigint(id)
	if err != nil {
		return err
	}
	return s.tx.write(ctx, "put_pool_metadata", `
		INSERT INTO pool_metadata (pool_id, description, external_url, image_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pool_id) DO UPDATE SET
			description = EXCLUDED.description,
			external_url = EXCLUDED.external_url,
			image_hash = EXCLUDED.image_hash
	`, key, md.Description, md.ExternalURL, md.ImageHash)
}

// GetMultiSig retrieves the multi-sig config. Returns ErrNotFound if none was set.
func (s *poolStore) GetMultiSig(ctx context.Context, id uint64) (*domain.MultiSigConfig, error) {
	key, err := bigint(id)
	if err != nil {
		return nil, err
	}
	var (
		required int32
		signers  []string
	)
	err = s.tx.queryRow(ctx, "get_pool_multisig", `
		SELECT required_signatures, signers
		FROM pool_multisig
		WHERE pool_id = $1
	`, key).Scan(&required, &signers)
	if err != nil {
		return nil, scanErr("get multisig", err)
	}
	if required <= 0 {
		return nil, fmt.Errorf("%w: required signatures %d", errCorruptRow, required)
	}
	return &domain.MultiSigConfig{RequiredSignatures: uint32(required), Signers: addresses(signers)}, nil
}

// PutMultiSig inserts or replaces the multi-sig config.
func (s *poolStore) PutMultiSig(ctx context.Context, id uint64, m *domain.MultiSigConfig) error {
	key, err := bigint(id)
	if err != nil {
		return err
	}
	return s.tx.write(ctx, "put_pool_multisig", `
		INSERT INTO pool_multisig (pool_id, required_signatures, signers)
		VALUES ($1, $2, $3)
		ON CONFLICT (pool_id) DO UPDATE SET
			required_signatures = EXCLUDED.required_signatures,
			signers = EXCLUDED.signers
	`, key, int64(m.RequiredSignatures), strs(m.Signers))
}

// GetContribution retrieves one contributor's record. Returns ErrNotFound if absent.
func (s *poolStore) GetContribution(ctx context.Context, id uint64, contributor domain.Address) (*domain.PoolContribution, error) {
	key, err := bigint(id)
	if err != nil {
		return nil, err
	}
	var text, asset string
	err = s.tx.queryRow(ctx, "get_pool_contribution", `
		SELECT amount::text, asset
		FROM pool_contributions
		WHERE pool_id = $1 AND contributor = $2
	`, key, string(contributor)).Scan(&text, &asset)
	if err != nil {
		return nil, scanErr("get pool contribution", err)
	}
	a, err := amount(text)
	if err != nil {
		return nil, err
	}
	return &domain.PoolContribution{PoolID: id, Contributor: contributor, Amount: a, Asset: domain.Address(asset)}, nil
}

// PutContribution inserts or replaces a contribution record.
func (s *poolStore) PutContribution(ctx context.Context, c *domain.PoolContribution) error {
	key, err := bigint(c.PoolID)
	if err != nil {
		return err
	}
	return s.tx.write(ctx, "put_pool_contribution", `
		INSERT INTO pool_contributions (pool_id, contributor, amount, asset)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (pool_id, contributor) DO UPDATE SET
			amount = EXCLUDED.amount,
			asset = EXCLUDED.asset
	`, key, string(c.Contributor), c.Amount.String(), string(c.Asset))
}
