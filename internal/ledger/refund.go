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

// Refund returns the caller's whole contribution to an expired pool once the
// grace period after its deadline has passed. The record is zeroed, not removed.
func (e *Engine) Refund(ctx context.Context, caller auth.Caller, poolID uint64) error {
	contributor := caller.Address
	action := auth.NewAction("refund", u64(poolID))

	return e.mutate(ctx, "refund", func(ctx context.Context, tx storage.Tx, m *mutation) error {
		if _, err := requireNotPaused(ctx, tx); err != nil {
			return err
		}
		if err := e.authorize(ctx, caller, contributor, action); err != nil {
			return err
		}

		pool, err := tx.Pools().Get(ctx, poolID)
		if err != nil {
			return notFound(err, ErrPoolNotFound, "pool")
		}
		if err := refundWindow(pool, m.now); err != nil {
			return err
		}

		state, err := poolState(ctx, tx, poolID)
		if err != nil {
			return err
		}
		if state == domain.PoolDisbursed {
			return ErrPoolAlreadyDisbursed
		}
		if m.now < pool.Deadline()+RefundGracePeriod {
			return ErrRefundGracePeriodNotPassed
		}

		record, err := tx.Pools().GetContribution(ctx, poolID, contributor)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNoContributionToRefund
		}
		if err != nil {
			return fmt.Errorf("get pool contribution: %w", err)
		}
		if !record.Amount.IsPositive() {
			return ErrNoContributionToRefund
		}

		metrics, err := poolMetrics(ctx, tx, poolID)
		if err != nil {
			return err
		}
		amount := record.Amount
		if metrics.TotalRaised, err = metrics.TotalRaised.Sub(amount); err != nil {
			return arith(err)
		}
		record.Amount = domain.ZeroAmount()

		if err := tx.Pools().PutMetrics(ctx, poolID, metrics); err != nil {
			return fmt.Errorf("put pool metrics: %w", err)
		}
		if err := tx.Pools().PutContribution(ctx, record); err != nil {
			return fmt.Errorf("put pool contribution: %w", err)
		}

		if err := m.transfer(ctx, record.Asset, e.vault, contributor, amount); err != nil {
			return err
		}

		m.emit(events.TopicRefund, map[string]string{
			"pool_id":     u64(poolID),
			"contributor": contributor.String(),
			"asset":       record.Asset.String(),
			"amount":      amount.String(),
		})
		return nil
	})
}

// refundWindow checks the pool has a deadline and that it has passed.
func refundWindow(pool *domain.Pool, now uint64) error {
	if !pool.HasDeadline() {
		return ErrRefundNotAvailable
	}
	if now < pool.Deadline() {
		return ErrPoolNotExpired
	}
	return nil
}
