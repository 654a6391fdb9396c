package memory

import (
	"context"

	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/storage"
)

// emergencyStore is the in-memory storage.EmergencyStore bound to one transaction.
type emergencyStore struct {
	tx *tx
}

// Get retrieves the pending request. Returns ErrNotFound if none.
func (s *emergencyStore) Get(_ context.Context) (*domain.EmergencyWithdrawal, error) {
	w := s.tx.state.emergency
	if w == nil {
		return nil, storage.ErrNotFound
	}
	withdrawalCopy := *w
	return &withdrawalCopy, nil
}

// Put inserts or replaces the request.
func (s *emergencyStore) Put(_ context.Context, w *domain.EmergencyWithdrawal) error {
	if w == nil {
		return storage.ErrInvalidInput
	}
	if err := s.tx.writable(); err != nil {
		return err
	}
	withdrawalCopy := *w
	s.set(&withdrawalCopy)
	return nil
}

// Delete removes the request.
func (s *emergencyStore) Delete(_ context.Context) error {
	if err := s.tx.writable(); err != nil {
		return err
	}
	s.set(nil)
	return nil
}

func (s *emergencyStore) set(w *domain.EmergencyWithdrawal) {
	st := s.tx.state
	prev := st.emergency
	s.tx.journal(func() { st.emergency = prev })
	st.emergency = w
}
