package postgres

import (
	"context"

	"crowdfund-ledger/internal/domain"
)

type emergencyStore struct {
	tx *tx
}

// Get retrieves the pending request. Returns ErrNotFound if none.
func (s *emergencyStore) Get(ctx context.Context) (*domain.EmergencyWithdrawal, error) {
	var (
		recipient, token, text string
		requestedAt            int64
		executed               bool
	)
	err := s.tx.queryRow(ctx, "get_emergency_withdrawal", `
		SELECT recipient, token, amount::text, requested_at, executed
		FROM emergency_withdrawal
		WHERE id = 1
	`).Scan(&recipient, &token, &text, &requestedAt, &executed)
	if err != nil {
		return nil, scanErr("get emergency withdrawal", err)
	}

	a, err := amount(text)
	if err != nil {
		return nil, err
	}
	at, err := unsigned(requestedAt)
	if err != nil {
		return nil, err
	}
	return &domain.EmergencyWithdrawal{
		Recipient:   domain.Address(recipient),
		Token:       domain.Address(token),
		Amount:      a,
		RequestedAt: at,
		Executed:    executed,
	}, nil
}

// Put inserts or replaces the request.
func (s *emergencyStore) Put(ctx context.Context, w *domain.EmergencyWithdrawal) error {
	at, err := bigint(w.RequestedAt)
	if err != nil {
		return err
	}
	return s.tx.write(ctx, "put_emergency_withdrawal", `
		INSERT INTO emergency_withdrawal (id, recipient, token, amount, requested_at, executed)
		VALUES (1, $1, $2, $3::numeric, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			recipient = EXCLUDED.recipient,
			token = EXCLUDED.token,
			amount = EXCLUDED.amount,
			requested_at = EXCLUDED.requested_at,
			executed = EXCLUDED.executed
	`, string(w.Recipient), string(w.Token), w.Amount.String(), at, w.Executed)
}

// Delete removes the request. Deleting an absent request is a no-op.
func (s *emergencyStore) Delete(ctx context.Context) error {
	return s.tx.write(ctx, "delete_emergency_withdrawal", `DELETE FROM emergency_withdrawal WHERE id = 1`)
}
