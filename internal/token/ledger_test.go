package token

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfund-ledger/internal/domain"
)

const (
	usdc  domain.Address = "usdc"
	alice domain.Address = "alice"
	bob   domain.Address = "bob"
)

func TestLedger_TransferMovesFunds(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.Mint(context.Background(), usdc, alice, domain.NewAmount(100)))

	require.NoError(t, l.Transfer(ctx, usdc, alice, bob, domain.NewAmount(40)))

	a, err := l.Balance(ctx, usdc, alice)
	require.NoError(t, err)
	b, err := l.Balance(ctx, usdc, bob)
	require.NoError(t, err)
	assert.Equal(t, "60", a.String())
	assert.Equal(t, "40", b.String())
}

func TestLedger_InsufficientBalanceLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.Mint(context.Background(), usdc, alice, domain.NewAmount(10)))

	err := l.Transfer(ctx, usdc, alice, bob, domain.NewAmount(11))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	a, _ := l.Balance(ctx, usdc, alice)
	assert.Equal(t, "10", a.String())
	assert.Len(t, l.Snapshot(), 1)
}

func TestLedger_UnknownAsset(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	err := l.Transfer(ctx, "nope", alice, bob, domain.NewAmount(1))
	assert.ErrorIs(t, err, ErrUnknownAsset)

	bal, err := l.Balance(ctx, "nope", alice)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestLedger_RejectsNegativeAmounts(t *testing.T) {
	l := NewLedger()
	assert.ErrorIs(t, l.Mint(context.Background(), usdc, alice, domain.NewAmount(-1)), ErrInvalidAmount)
	assert.ErrorIs(t, l.Transfer(context.Background(), usdc, alice, bob, domain.NewAmount(-1)), ErrInvalidAmount)
}

func TestLedger_SnapshotOrdering(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Mint(context.Background(), "b-asset", bob, domain.NewAmount(1)))
	require.NoError(t, l.Mint(context.Background(), "a-asset", bob, domain.NewAmount(2)))
	require.NoError(t, l.Mint(context.Background(), "a-asset", alice, domain.NewAmount(3)))

	snap := l.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, domain.Address("a-asset"), snap[0].Asset)
	assert.Equal(t, alice, snap[0].Holder)
	assert.Equal(t, "3", snap[0].Balance.String())
	assert.Equal(t, domain.Address("a-asset"), snap[1].Asset)
	assert.Equal(t, bob, snap[1].Holder)
	assert.Equal(t, domain.Address("b-asset"), snap[2].Asset)
}
