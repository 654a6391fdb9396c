package memory

import (
	"context"

	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/storage"
)

// settingsStore is the in-memory storage.SettingsStore bound to one transaction.
type settingsStore struct {
	tx *tx
}

// Get returns a copy of the settings record.
func (s *settingsStore) Get(_ context.Context) (*domain.Settings, error) {
	settingsCopy := s.tx.state.settings
	return &settingsCopy, nil
}

// Put replaces the settings record.
func (s *settingsStore) Put(_ context.Context, v *domain.Settings) error {
	if v == nil {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}

	st := s.tx.state
	prev := st.settings
	s.tx.journal(func() { st.settings = prev })
	st.settings = *v
	return nil
}

// AllocatePoolID returns the next pool id and advances the counter.
func (s *settingsStore) AllocatePoolID(_ context.Context) (uint64, error) {
	if err := s.tx.writable(); err != nil {
		return 0, err
	}

	st := s.tx.state
	id := st.nextPoolID
	s.tx.journal(func() { st.nextPoolID = id })
	st.nextPoolID = id + 1
	return id, nil
}
