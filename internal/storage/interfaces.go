package storage

import (
	"context"

	"crowdfund-ledger/internal/domain"
)

// Store is the single logical ledger store.
// Every mutating operation runs inside one Update call; either all of its writes
// become visible or none do.
type Store interface {
	// Update runs fn in a read-write transaction. A non-nil error from fn rolls back
	// every write made through tx.
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// View runs fn in a read-only transaction. Writes return ErrReadOnly.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes one namespace store per entity kind, all bound to the same transaction.
type Tx interface {
	Settings() SettingsStore
	Campaigns() CampaignStore
	Pools() PoolStore
	Emergency() EmergencyStore
}

// SettingsStore provides access to the contract-wide settings record.
type SettingsStore interface {
	// Get returns the settings. Before initialization it returns the zero record.
	Get(ctx context.Context) (*domain.Settings, error)

	// Put replaces the settings record.
	Put(ctx context.Context, s *domain.Settings) error

	// AllocatePoolID returns the next pool id and advances the counter.
	// The first id handed out is 1.
	AllocatePoolID(ctx context.Context) (uint64, error)
}

// CampaignStore provides access to campaigns, their metrics and contributions.
type CampaignStore interface {
	// Insert adds a new campaign and appends its id to the ordered index.
	// Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, c *domain.Campaign) error

	// Get retrieves a campaign by id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, id domain.CampaignID) (*domain.Campaign, error)

	// Update replaces an existing campaign. Returns ErrNotFound if not exists.
	Update(ctx context.Context, c *domain.Campaign) error

	// ListIDs returns every campaign id in creation order.
	ListIDs(ctx context.Context) ([]domain.CampaignID, error)

	// GetMetrics retrieves campaign metrics. Returns ErrNotFound if not exists.
	GetMetrics(ctx context.Context, id domain.CampaignID) (*domain.CampaignMetrics, error)

	// PutMetrics inserts or replaces campaign metrics.
	PutMetrics(ctx context.Context, id domain.CampaignID, m *domain.CampaignMetrics) error

	// GetContribution retrieves one donor's cumulative contribution.
	// Returns ErrNotFound if the donor never donated.
	GetContribution(ctx context.Context, id domain.CampaignID, contributor domain.Address) (*domain.Contribution, error)

	// PutContribution inserts or replaces a contribution record.
	PutContribution(ctx context.Context, c *domain.Contribution) error
}

// PoolStore provides access to pools and every record keyed by pool id.
type PoolStore interface {
	// Insert adds a new pool. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, p *domain.Pool) error

	// Get retrieves a pool by id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, id uint64) (*domain.Pool, error)

	// GetState retrieves the pool state. Returns ErrNotFound if not exists.
	GetState(ctx context.Context, id uint64) (domain.PoolState, error)

	// PutState inserts or replaces the pool state.
	PutState(ctx context.Context, id uint64, s domain.PoolState) error

	// GetMetrics retrieves pool metrics. Returns ErrNotFound if not exists.
	GetMetrics(ctx context.Context, id uint64) (*domain.PoolMetrics, error)

	// PutMetrics inserts or replaces pool metrics.
	PutMetrics(ctx context.Context, id uint64, m *domain.PoolMetrics) error

	// GetMetadata retrieves pool metadata. Returns ErrNotFound if not exists.
	GetMetadata(ctx context.Context, id uint64) (*domain.PoolMetadata, error)

	// PutMetadata inserts or replaces pool metadata.
	PutMetadata(ctx context.Context, id uint64, m *domain.PoolMetadata) error

	// GetMultiSig retrieves the multi-sig config. Returns ErrNotFound if none was set.
	GetMultiSig(ctx context.Context, id uint64) (*domain.MultiSigConfig, error)

	// PutMultiSig inserts or replaces the multi-sig config.
	PutMultiSig(ctx context.Context, id uint64, m *domain.MultiSigConfig) error

	// GetContribution retrieves one contributor's record. Returns ErrNotFound if absent.
	GetContribution(ctx context.Context, id uint64, contributor domain.Address) (*domain.PoolContribution, error)

	// PutContribution inserts or replaces a contribution record.
	PutContribution(ctx context.Context, c *domain.PoolContribution) error
}

// EmergencyStore provides access to the singleton emergency withdrawal request.
type EmergencyStore interface {
	// Get retrieves the pending request. Returns ErrNotFound if none.
	Get(ctx context.Context) (*domain.EmergencyWithdrawal, error)

	// Put inserts or replaces the request.
	Put(ctx context.Context, w *domain.EmergencyWithdrawal) error

	// Delete removes the request. Deleting an absent request is a no-op.
	Delete(ctx context.Context) error
}
