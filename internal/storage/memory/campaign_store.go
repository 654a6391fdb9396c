package memory

import (
	"context"

	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/storage"
)

// campaignStore is the in-memory storage.CampaignStore bound to one transaction.
type campaignStore struct {
	tx *tx
}

// Insert adds a new campaign. Returns ErrDuplicateKey if the id exists.
func (s *campaignStore) Insert(_ context.Context, c *domain.Campaign) error {
	if c == nil || c.ID.IsZero() {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}

	st := s.tx.state
	if _, exists := st.campaigns[c.ID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	campaignCopy := *c
	put(s.tx, st.campaigns, c.ID, &campaignCopy)

	order := st.campaignOrder
	s.tx.journal(func() { st.campaignOrder = order })
	st.campaignOrder = append(st.campaignOrder[:len(order):len(order)], c.ID)
	return nil
}

// Get retrieves a campaign by id. Returns ErrNotFound if not exists.
func (s *campaignStore) Get(_ context.Context, id domain.CampaignID) (*domain.Campaign, error) {
	c, exists := s.tx.state.campaigns[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	campaignCopy := *c
	return &campaignCopy, nil
}

// Update replaces an existing campaign. Returns ErrNotFound if not exists.
func (s *campaignStore) Update(_ context.Context, c *domain.Campaign) error {
	if c == nil {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}

	st := s.tx.state
	if _, exists := st.campaigns[c.ID]; !exists {
		return storage.ErrNotFound
	}
	campaignCopy := *c
	put(s.tx, st.campaigns, c.ID, &campaignCopy)
	return nil
}

// ListIDs returns every campaign id in creation order.
func (s *campaignStore) ListIDs(_ context.Context) ([]domain.CampaignID, error) {
	ids := make([]domain.CampaignID, len(s.tx.state.campaignOrder))
	copy(ids, s.tx.state.campaignOrder)
	return ids, nil
}

// GetMetrics retrieves campaign metrics. Returns ErrNotFound if not exists.
func (s *campaignStore) GetMetrics(_ context.Context, id domain.CampaignID) (*domain.CampaignMetrics, error) {
	m, exists := s.tx.state.campaignMetrics[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	metricsCopy := *m
	return &metricsCopy, nil
}

// PutMetrics inserts or replaces campaign metrics.
func (s *campaignStore) PutMetrics(_ context.Context, id domain.CampaignID, m *domain.CampaignMetrics) error {
	if m == nil {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}
	metricsCopy := *m
	put(s.tx, s.tx.state.campaignMetrics, id, &metricsCopy)
	return nil
}

// GetContribution retrieves one donor's cumulative contribution.
func (s *campaignStore) GetContribution(_ context.Context, id domain.CampaignID, contributor domain.Address) (*domain.Contribution, error) {
	c, exists := s.tx.state.contributions[contributionKey{campaign: id, contributor: contributor}]
	if !exists {
		return nil, storage.ErrNotFound
	}
	contributionCopy := *c
	return &contributionCopy, nil
}

// PutContribution inserts or replaces a contribution record.
func (s *campaignStore) PutContribution(_ context.Context, c *domain.Contribution) error {
	if c == nil || c.Contributor.IsZero() {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}
	contributionCopy := *c
	key := contributionKey{campaign: c.CampaignID, contributor: c.Contributor}
	put(s.tx, s.tx.state.contributions, key, &contributionCopy)
	return nil
}
