package ledger

import (
	"context"
	"errors"
	"fmt"

	"crowdfund-ledger/internal/auth"
	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/storage"
)

// RequestEmergencyWithdraw records a time-locked request to move amount of
// tokenAddr from the vault to the admin. Only one request may be pending.
func (e *Engine) RequestEmergencyWithdraw(ctx context.Context, caller auth.Caller, tokenAddr domain.Address, amount domain.Amount) error {
	action := auth.NewAction("request_emergency_withdraw", tokenAddr.String(), amount.String())

	return e.mutate(ctx, "request_emergency_withdraw", func(ctx context.Context, tx storage.Tx, m *mutation) error {
		s, err := e.requireAdmin(ctx, tx, caller, action)
		if err != nil {
			return err
		}
		if !amount.IsPositive() {
			return ErrInvalidAmount
		}

		if _, err := tx.Emergency().Get(ctx); err == nil {
			return ErrEmergencyWithdrawalAlreadyRequested
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("get emergency withdrawal: %w", err)
		}

		w := &domain.EmergencyWithdrawal{
			Recipient:   s.Admin,
			Token:       tokenAddr,
			Amount:      amount,
			RequestedAt: m.now,
		}
		if err := tx.Emergency().Put(ctx, w); err != nil {
			return fmt.Errorf("put emergency withdrawal: %w", err)
		}

		m.emit(events.TopicEmergencyWithdrawRequested, map[string]string{
			"admin":     s.Admin.String(),
			"token":     tokenAddr.String(),
			"amount":    amount.String(),
			"unlock_at": u64(w.UnlocksAt(EmergencyWithdrawalDelay)),
		})
		return nil
	})
}

// ExecuteEmergencyWithdraw pays out the pending request once its lock expired
// and removes it.
func (e *Engine) ExecuteEmergencyWithdraw(ctx context.Context, caller auth.Caller) error {
	return e.mutate(ctx, "execute_emergency_withdraw", func(ctx context.Context, tx storage.Tx, m *mutation) error {
		s, err := e.requireAdmin(ctx, tx, caller, auth.NewAction("execute_emergency_withdraw"))
		if err != nil {
			return err
		}

		w, err := tx.Emergency().Get(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrEmergencyWithdrawalNotRequested
		}
		if err != nil {
			return fmt.Errorf("get emergency withdrawal: %w", err)
		}
		if m.now < w.UnlocksAt(EmergencyWithdrawalDelay) {
			return ErrEmergencyWithdrawalPeriodNotPassed
		}

		if err := tx.Emergency().Delete(ctx); err != nil {
			return fmt.Errorf("delete emergency withdrawal: %w", err)
		}
		if err := m.transfer(ctx, w.Token, e.vault, s.Admin, w.Amount); err != nil {
			return err
		}

		m.emit(events.TopicEmergencyWithdrawExecuted, map[string]string{
			"admin":  s.Admin.String(),
			"token":  w.Token.String(),
			"amount": w.Amount.String(),
		})
		return nil
	})
}

// GetEmergencyWithdrawal returns the pending request, nil when none.
func (e *Engine) GetEmergencyWithdrawal(ctx context.Context) (*domain.EmergencyWithdrawal, error) {
	var out *domain.EmergencyWithdrawal
	err := e.view(ctx, func(ctx context.Context, tx storage.Tx) error {
		w, err := tx.Emergency().Get(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get emergency withdrawal: %w", err)
		}
		out = w
		return nil
	})
	return out, err
}
