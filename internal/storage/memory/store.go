package memory

import (
	"context"
	"sync"

	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
// Update holds the write lock for the whole transaction and undoes every write
// when fn fails or panics.
type Store struct {
	mu    sync.RWMutex
	state *state
}

type contributionKey struct {
	campaign    domain.CampaignID
	contributor domain.Address
}

type poolContributionKey struct {
	pool        uint64
	contributor domain.Address
}

// state holds one map per entity kind, keyed by natural id.
type state struct {
	settings   domain.Settings
	nextPoolID uint64

	campaigns       map[domain.CampaignID]*domain.Campaign
	campaignOrder   []domain.CampaignID
	campaignMetrics map[domain.CampaignID]*domain.CampaignMetrics
	contributions   map[contributionKey]*domain.Contribution

	pools             map[uint64]*domain.Pool
	poolStates        map[uint64]domain.PoolState
	poolMetrics       map[uint64]*domain.PoolMetrics
	poolMetadata      map[uint64]*domain.PoolMetadata
	multiSig          map[uint64]*domain.MultiSigConfig
	poolContributions map[poolContributionKey]*domain.PoolContribution

	emergency *domain.EmergencyWithdrawal
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: &state{
			nextPoolID:        1,
			campaigns:         make(map[domain.CampaignID]*domain.Campaign),
			campaignMetrics:   make(map[domain.CampaignID]*domain.CampaignMetrics),
			contributions:     make(map[contributionKey]*domain.Contribution),
			pools:             make(map[uint64]*domain.Pool),
			poolStates:        make(map[uint64]domain.PoolState),
			poolMetrics:       make(map[uint64]*domain.PoolMetrics),
			poolMetadata:      make(map[uint64]*domain.PoolMetadata),
			multiSig:          make(map[uint64]*domain.MultiSigConfig),
			poolContributions: make(map[poolContributionKey]*domain.PoolContribution),
		},
	}
}

// Update runs fn in a read-write transaction.
func (s *Store) Update(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{state: s.state}
	defer func() {
		if r := recover(); r != nil {
			t.rollback()
			panic(r)
		}
	}()

	if err = fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	if err = ctx.Err(); err != nil {
		t.rollback()
		return err
	}
	return nil
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(ctx, &tx{state: s.state, readOnly: true})
}

// tx is a journaled view over state.
type tx struct {
	state    *state
	readOnly bool
	undo     []func()
}

var (
	_ storage.Store          = (*Store)(nil)
	_ storage.Tx             = (*tx)(nil)
	_ storage.SettingsStore  = (*settingsStore)(nil)
	_ storage.CampaignStore  = (*campaignStore)(nil)
	_ storage.PoolStore      = (*poolStore)(nil)
	_ storage.EmergencyStore = (*emergencyStore)(nil)
)

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

// journal registers an undo step. Steps run in reverse order on rollback.
func (t *tx) journal(step func()) {
	t.undo = append(t.undo, step)
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// put writes m[k] = v and journals the previous entry.
func put[K comparable, V any](t *tx, m map[K]V, k K, v V) {
	prev, existed := m[k]
	t.journal(func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}
