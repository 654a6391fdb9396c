package postgres

import (
	"context"
	"fmt"

	"crowdfund-ledger/internal/domain"
)

type settingsStore struct {
	tx *tx
}

// Get returns the settings row, or the zero record when none exists.
func (s *settingsStore) Get(ctx context.Context) (*domain.Settings, error) {
	var (
		admin, token, fee string
		paused            bool
	)
	err := s.tx.queryRow(ctx, "get_settings", `
		SELECT admin, token, creation_fee::text, paused
		FROM settings
		WHERE id = 1
	`).Scan(&admin, &token, &fee, &paused)
	if isNotFoundError(err) {
		return &domain.Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	creationFee, err := amount(fee)
	if err != nil {
		return nil, err
	}
	return &domain.Settings{
		Admin:       domain.Address(admin),
		Token:       domain.Address(token),
		CreationFee: creationFee,
		Paused:      paused,
	}, nil
}

// Put upserts the settings row, leaving the pool id counter untouched.
func (s *settingsStore) Put(ctx context.Context, st *domain.Settings) error {
	return s.tx.write(ctx, "put_settings", `
		INSERT INTO settings (id, admin, token, creation_fee, paused)
		VALUES (1, $1, $2, $3::numeric, $4)
		ON CONFLICT (id) DO UPDATE SET
			admin = EXCLUDED.admin,
			token = EXCLUDED.token,
			creation_fee = EXCLUDED.creation_fee,
			paused = EXCLUDED.paused
	`, string(st.Admin), string(st.Token), st.CreationFee.String(), st.Paused)
}

// AllocatePoolID returns the current counter value and advances it.
func (s *settingsStore) AllocatePoolID(ctx context.Context) (uint64, error) {
	if err := s.tx.write(ctx, "ensure_settings",
		`INSERT INTO settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING`); err != nil {
		return 0, err
	}

	var id int64
	err := s.tx.queryRow(ctx, "allocate_pool_id", `
		UPDATE settings
		SET next_pool_id = next_pool_id + 1
		WHERE id = 1
		RETURNING next_pool_id - 1
	`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("allocate pool id: %w", err)
	}
	return unsigned(id)
}
