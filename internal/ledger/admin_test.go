package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfund-ledger/internal/auth"
	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/events"
)

func TestAdmin_InitializeOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.GetAdmin(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = f.engine.GetCrowdfundingToken(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)

	fee, err := f.engine.GetCreationFee(ctx)
	require.NoError(t, err)
	assert.True(t, fee.IsZero())

	paused, err := f.engine.IsPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)

	err = f.engine.Initialize(ctx, admin, usdc, domain.NewAmount(-1))
	assert.ErrorIs(t, err, ErrInvalidFee)

	err = f.engine.Initialize(ctx, "", usdc, domain.ZeroAmount())
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.engine.Initialize(ctx, admin, usdc, domain.NewAmount(7)))

	err = f.engine.Initialize(ctx, alice, usdc, domain.ZeroAmount())
	assert.ErrorIs(t, err, ErrContractAlreadyInitialized)

	got, err := f.engine.GetAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, got)

	tok, err := f.engine.GetCrowdfundingToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, usdc, tok)

	fee, err = f.engine.GetCreationFee(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7", fee.String())
}

func TestAdmin_PauseLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.engine.Pause(ctx, auth.As(admin)), ErrNotInitialized)
	assert.ErrorIs(t, f.engine.Unpause(ctx, auth.As(admin)), ErrNotInitialized)

	require.NoError(t, f.engine.Initialize(ctx, admin, usdc, domain.ZeroAmount()))

	assert.ErrorIs(t, f.engine.Pause(ctx, auth.As(alice)), ErrUnauthorized)
	assert.ErrorIs(t, f.engine.Unpause(ctx, auth.As(admin)), ErrContractAlreadyUnpaused)

	require.NoError(t, f.engine.Pause(ctx, auth.As(admin)))
	assert.ErrorIs(t, f.engine.Pause(ctx, auth.As(admin)), ErrContractAlreadyPaused)

	require.NoError(t, f.engine.Unpause(ctx, auth.As(admin)))

	assert.Equal(t, []string{events.TopicContractPaused, events.TopicContractUnpaused}, f.events.Topics())
}

func TestAdmin_PauseGatesUserOperations(t *testing.T) {
	ctx := context.Background()
	f := initialized(t)
	id := f.campaign(t, "roof", 1000)
	poolID, err := f.engine.CreatePool(ctx, auth.As(alice), domain.PoolConfig{
		Name:         "well",
		TargetAmount: domain.NewAmount(100),
		Duration:     60,
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.Pause(ctx, auth.As(admin)))

	gated := map[string]func() error{
		"create_campaign": func() error {
			return f.engine.CreateCampaign(ctx, auth.As(alice), CampaignParams{
				ID: domain.CampaignID{1}, Title: "t", Goal: domain.NewAmount(1), Deadline: t0 + 5,
			})
		},
		"donate": func() error {
			return f.engine.Donate(ctx, auth.As(bob), id, usdc, domain.NewAmount(1))
		},
		"create_pool": func() error {
			_, err := f.engine.CreatePool(ctx, auth.As(alice), domain.PoolConfig{
				Name: "p", TargetAmount: domain.NewAmount(1), Duration: 5,
			})
			return err
		},
		"save_pool": func() error {
			_, err := f.engine.SavePool(ctx, auth.As(alice), SavePoolParams{
				Name: "p", TargetAmount: domain.NewAmount(1), Deadline: t0 + 5,
			})
			return err
		},
		"update_pool_state": func() error {
			return f.engine.UpdatePoolState(ctx, poolID, domain.PoolPaused)
		},
		"contribute": func() error {
			return f.engine.Contribute(ctx, auth.As(bob), poolID, usdc, domain.NewAmount(1), false)
		},
		"refund": func() error {
			return f.engine.Refund(ctx, auth.As(bob), poolID)
		},
	}
	for name, op := range gated {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), ErrContractPaused)
		})
	}

	// Reads stay open.
	_, err = f.engine.GetCampaign(ctx, id)
	assert.NoError(t, err)
	_, err = f.engine.GetPool(ctx, poolID)
	assert.NoError(t, err)
}

func TestAdmin_SetCrowdfundingToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const eurc domain.Address = "eurc"

	assert.ErrorIs(t, f.engine.SetCrowdfundingToken(ctx, auth.As(admin), eurc), ErrNotInitialized)

	require.NoError(t, f.engine.Initialize(ctx, admin, usdc, domain.ZeroAmount()))
	assert.ErrorIs(t, f.engine.SetCrowdfundingToken(ctx, auth.As(bob), eurc), ErrUnauthorized)
	require.NoError(t, f.engine.SetCrowdfundingToken(ctx, auth.As(admin), eurc))

	tok, err := f.engine.GetCrowdfundingToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, eurc, tok)

	set := f.events.ByTopic(events.TopicCrowdfundingTokenSet)
	require.Len(t, set, 1)
	assert.Equal(t, "eurc", set[0].Attrs["token"])
}

func TestAdmin_SetCreationFee(t *testing.T) {
	ctx := context.Background()
	f := initialized(t)

	assert.ErrorIs(t, f.engine.SetCreationFee(ctx, auth.As(bob), domain.NewAmount(1)), ErrUnauthorized)
	assert.ErrorIs(t, f.engine.SetCreationFee(ctx, auth.As(admin), domain.NewAmount(-1)), ErrInvalidFee)
	require.NoError(t, f.engine.SetCreationFee(ctx, auth.As(admin), domain.NewAmount(3)))

	s, err := f.engine.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3", s.CreationFee.String())
	assert.Equal(t, admin, s.Admin)
}
