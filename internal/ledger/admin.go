package ledger

import (
	"context"
	"fmt"

	"crowdfund-ledger/internal/auth"
	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/storage"
)

// Initialize sets the admin, crowdfunding token and creation fee exactly once.
func (e *Engine) Initialize(ctx context.Context, admin, tokenAddr domain.Address, creationFee domain.Amount) error {
	return e.mutate(ctx, "initialize", func(ctx context.Context, tx storage.Tx, m *mutation) error {
		s, err := loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		if s.IsInitialized() {
			return ErrContractAlreadyInitialized
		}
		if admin.IsZero() {
			return ErrUnauthorized
		}
		if creationFee.Sign() < 0 {
			return ErrInvalidFee
		}

		s.Admin = admin
		s.Token = tokenAddr
		s.CreationFee = creationFee
		s.Paused = false
		if err := tx.Settings().Put(ctx, s); err != nil {
			return fmt.Errorf("put settings: %w", err)
		}
		return nil
	})
}

// Pause closes the pause gate. Admin only.
func (e *Engine) Pause(ctx context.Context, caller auth.Caller) error {
	return e.setPaused(ctx, caller, true)
}

// Unpause opens the pause gate. Admin only.
func (e *Engine) Unpause(ctx context.Context, caller auth.Caller) error {
	return e.setPaused(ctx, caller, false)
}

func (e *Engine) setPaused(ctx context.Context, caller auth.Caller, paused bool) error {
	op, topic, already := "unpause", events.TopicContractUnpaused, ErrContractAlreadyUnpaused
	if paused {
		op, topic, already = "pause", events.TopicContractPaused, ErrContractAlreadyPaused
	}

	return e.mutate(ctx, op, func(ctx context.Context, tx storage.Tx, m *mutation) error {
		s, err := e.requireAdmin(ctx, tx, caller, auth.NewAction(op))
		if err != nil {
			return err
		}
		if s.Paused == paused {
			return already
		}

		s.Paused = paused
		if err := tx.Settings().Put(ctx, s); err != nil {
			return fmt.Errorf("put settings: %w", err)
		}
		m.emit(topic, map[string]string{"admin": s.Admin.String()})
		return nil
	})
}

// IsPaused reports the pause flag. False before initialization.
func (e *Engine) IsPaused(ctx context.Context) (bool, error) {
	var paused bool
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		s, err := loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		paused = s.Paused
		return nil
	})
	return paused, err
}

// GetAdmin returns the admin. NotInitialized before initialization.
func (e *Engine) GetAdmin(ctx context.Context) (domain.Address, error) {
	var admin domain.Address
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		s, err := loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		if !s.IsInitialized() {
			return ErrNotInitialized
		}
		admin = s.Admin
		return nil
	})
	return admin, err
}

// GetSettings returns a copy of the whole settings record.
func (e *Engine) GetSettings(ctx context.Context) (*domain.Settings, error) {
	var out *domain.Settings
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		s, err := loadSettings(ctx, tx)
		out = s
		return err
	})
	return out, err
}

// SetCrowdfundingToken replaces the asset used for new campaigns and fees. Admin only.
func (e *Engine) SetCrowdfundingToken(ctx context.Context, caller auth.Caller, tokenAddr domain.Address) error {
	return e.mutate(ctx, "set_crowdfunding_token", func(ctx context.Context, tx storage.Tx, m *mutation) error {
		s, err := e.requireAdmin(ctx, tx, caller, auth.NewAction("set_crowdfunding_token", tokenAddr.String()))
		if err != nil {
			return err
		}

		s.Token = tokenAddr
		if err := tx.Settings().Put(ctx, s); err != nil {
			return fmt.Errorf("put settings: %w", err)
		}
		m.emit(events.TopicCrowdfundingTokenSet, map[string]string{
			"admin": s.Admin.String(),
			"token": tokenAddr.String(),
		})
		return nil
	})
}

// GetCrowdfundingToken returns the configured token. NotInitialized when unset.
func (e *Engine) GetCrowdfundingToken(ctx context.Context) (domain.Address, error) {
	var tokenAddr domain.Address
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		s, err := loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		if s.Token.IsZero() {
			return ErrNotInitialized
		}
		tokenAddr = s.Token
		return nil
	})
	return tokenAddr, err
}

// SetCreationFee replaces the campaign creation fee. Admin only.
func (e *Engine) SetCreationFee(ctx context.Context, caller auth.Caller, fee domain.Amount) error {
	return e.mutate(ctx, "set_creation_fee", func(ctx context.Context, tx storage.Tx, m *mutation) error {
		s, err := e.requireAdmin(ctx, tx, caller, auth.NewAction("set_creation_fee", fee.String()))
		if err != nil {
			return err
		}
		if fee.Sign() < 0 {
			return ErrInvalidFee
		}

		s.CreationFee = fee
		if err := tx.Settings().Put(ctx, s); err != nil {
			return fmt.Errorf("put settings: %w", err)
		}
		m.emit(events.TopicCreationFeeSet, map[string]string{
			"admin": s.Admin.String(),
			"fee":   fee.String(),
		})
		return nil
	})
}

// GetCreationFee returns the creation fee, zero when never set.
func (e *Engine) GetCreationFee(ctx context.Context) (domain.Amount, error) {
	var fee domain.Amount
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		s, err := loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		fee = s.CreationFee
		return nil
	})
	return fee, err
}
