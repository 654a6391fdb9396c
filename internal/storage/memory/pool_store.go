package memory

import (
	"context"

	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/storage"
)

// poolStore is the in-memory storage.PoolStore bound to one transaction.
type poolStore struct {
	tx *tx
}

// Insert adds a new pool. Returns ErrDuplicateKey if the id exists.
func (s *poolStore) Insert(_ context.Context, p *domain.Pool) error {
	if p == nil || p.ID == 0 {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}
	if _, exists := s.tx.state.pools[p.ID]; exists {
		return storage.ErrDuplicateKey
	}
	poolCopy := *p
	put(s.tx, s.tx.state.pools, p.ID, &poolCopy)
	return nil
}

// Get retrieves a pool by id. Returns ErrNotFound if not exists.
func (s *poolStore) Get(_ context.Context, id uint64) (*domain.Pool, error) {
	p, exists := s.tx.state.pools[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	poolCopy := *p
	return &poolCopy, nil
}

// GetState retrieves the pool state. Returns ErrNotFound if not exists.
func (s *poolStore) GetState(_ context.Context, id uint64) (domain.PoolState, error) {
	state, exists := s.tx.state.poolStates[id]
	if !exists {
		return 0, storage.ErrNotFound
	}
	return state, nil
}

// PutState inserts or replaces the pool state.
func (s *poolStore) PutState(_ context.Context, id uint64, state domain.PoolState) error {
	if !state.IsValid() {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}
	put(s.tx, s.tx.state.poolStates, id, state)
	return nil
}

// GetMetrics retrieves pool metrics. Returns ErrNotFound if not exists.
func (s *poolStore) GetMetrics(_ context.Context, id uint64) (*domain.PoolMetrics, error) {
	m, exists := s.tx.state.poolMetrics[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	metricsCopy := *m
	return &metricsCopy, nil
}

// PutMetrics inserts or replaces pool metrics.
func (s *poolStore) PutMetrics(_ context.Context, id uint64, m *domain.PoolMetrics) error {
	if m == nil {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}
	metricsCopy := *m
	put(s.tx, s.tx.state.poolMetrics, id, &metricsCopy)
	return nil
}

// GetMetadata retrieves pool metadata. Returns ErrNotFound if not exists.
func (s *poolStore) GetMetadata(_ context.Context, id uint64) (*domain.PoolMetadata, error) {
	m, exists := s.tx.state.poolMetadata[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	metadataCopy := *m
	return &metadataCopy, nil
}

// PutMetadata inserts or replaces pool metadata.
func (s *poolStore) PutMetadata(_ context.Context, id uint64, m *domain.PoolMetadata) error {
	if m == nil {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}
	metadataCopy := *m
	put(s.tx, s.tx.state.poolMetadata, id, &metadataCopy)
	return nil
}

// GetMultiSig retrieves the multi-sig config. Returns ErrNotFound if none was set.
func (s *poolStore) GetMultiSig(_ context.Context, id uint64) (*domain.MultiSigConfig, error) {
	m, exists := s.tx.state.multiSig[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyMultiSig(m), nil
}

// PutMultiSig inserts or replaces the multi-sig config.
func (s *poolStore) PutMultiSig(_ context.Context, id uint64, m *domain.MultiSigConfig) error {
	if m == nil {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}
	put(s.tx, s.tx.state.multiSig, id, copyMultiSig(m))
	return nil
}

// GetContribution retrieves one contributor's record. Returns ErrNotFound if absent.
func (s *poolStore) GetContribution(_ context.Context, id uint64, contributor domain.Address) (*domain.PoolContribution, error) {
	c, exists := s.tx.state.poolContributions[poolContributionKey{pool: id, contributor: contributor}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	contributionCopy := *c
	return &contributionCopy, nil
}

// PutContribution inserts or replaces a contribution record.
func (s *poolStore) PutContribution(_ context.Context, c *domain.PoolContribution) error {
	if c == nil || c.Contributor.IsZero() {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}
	contributionCopy := *c
	key := poolContributionKey{pool: c.PoolID, contributor: c.Contributor}
	put(s.tx, s.tx.state.poolContributions, key, &contributionCopy)
	return nil
}

func copyMultiSig(m *domain.MultiSigConfig) *domain.MultiSigConfig {
	signers := make([]domain.Address, len(m.Signers))
	copy(signers, m.Signers)
	return &domain.MultiSigConfig{RequiredSignatures: m.RequiredSignatures, Signers: signers}
}
