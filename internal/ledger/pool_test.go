package ledger

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfund-ledger/internal/auth"
	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/events"
)

func uint32Ptr(v uint32) *uint32 { return &v }

func (f *fixture) pool(t *testing.T, target int64, ttl uint64) uint64 {
	t.Helper()
	id, err := f.engine.SavePool(context.Background(), auth.As(alice), SavePoolParams{
		Name:         "well",
		TargetAmount: domain.NewAmount(target),
		Deadline:     f.clock.Now() + ttl,
	})
	require.NoError(t, err)
	return id
}

func TestPool_IDsAreSequential(t *testing.T) {
	ctx := context.Background()
	f := initialized(t)

	first := f.pool(t, 100, 60)
	second, err := f.engine.CreatePool(ctx, auth.As(bob), domain.PoolConfig{
		Name:         "school",
		Description:  "books",
		TargetAmount: domain.NewAmount(50),
		IsPrivate:    true,
		Duration:     3600,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)

	p, err := f.engine.GetPool(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "school", p.Name)
	assert.True(t, p.IsPrivate)
	assert.Equal(t, t0, p.CreatedAt)
	assert.Equal(t, t0+3600, p.Deadline())

	md, err := f.engine.GetPoolMetadata(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "books", md.Description)

	state, err := f.engine.GetPoolState(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, domain.PoolActive, state)

	created := f.events.ByTopic(events.TopicPoolCreated)
	require.Len(t, created, 2)
	assert.Equal(t, "2", created[1].Attrs["pool_id"])
	assert.Equal(t, bob.String(), created[1].Attrs["creator"])
}

func TestPool_SaveValidation(t *testing.T) {
	ctx := context.Background()
	f := initialized(t)
	valid := SavePoolParams{
		Name:         "well",
		TargetAmount: domain.NewAmount(100),
		Deadline:     t0 + 60,
	}

	tests := []struct {
		name   string
		mutate func(p *SavePoolParams)
		want   error
	}{
		{"empty name", func(p *SavePoolParams) { p.Name = "" }, ErrInvalidPoolName},
		{"zero target", func(p *SavePoolParams) { p.TargetAmount = domain.ZeroAmount() }, ErrInvalidPoolTarget},
		{"deadline now", func(p *SavePoolParams) { p.Deadline = t0 }, ErrInvalidPoolDeadline},
		{"deadline past int64", func(p *SavePoolParams) { p.Deadline = math.MaxUint64 }, ErrInvalidPoolDeadline},
		{"long description", func(p *SavePoolParams) {
			p.Metadata.Description = strings.Repeat("d", domain.MaxDescriptionLength+1)
		}, ErrInvalidMetadata},
		{"long url", func(p *SavePoolParams) {
			p.Metadata.ExternalURL = strings.Repeat("u", domain.MaxURLLength+1)
		}, ErrInvalidMetadata},
		{"long hash", func(p *SavePoolParams) {
			p.Metadata.ImageHash = strings.Repeat("h", domain.MaxHashLength+1)
		}, ErrInvalidMetadata},
		{"threshold without signers", func(p *SavePoolParams) {
			p.RequiredSignatures = uint32Ptr(1)
		}, ErrInvalidMultiSigConfig},
		{"signers without threshold", func(p *SavePoolParams) {
			p.Signers = []domain.Address{alice}
		}, ErrInvalidMultiSigConfig},
		{"zero threshold", func(p *SavePoolParams) {
			p.RequiredSignatures = uint32Ptr(0)
			p.Signers = []domain.Address{alice}
		}, ErrInvalidMultiSigConfig},
		{"threshold above signers", func(p *SavePoolParams) {
			p.RequiredSignatures = uint32Ptr(3)
			p.Signers = []domain.Address{alice, bob}
		}, ErrInvalidMultiSigConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			_, err := f.engine.SavePool(ctx, auth.As(alice), p)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// Rejections never consume an id.
	id := f.pool(t, 100, 60)
	assert.Equal(t, uint64(1), id)
}

func TestPool_CreateValidation(t *testing.T) {
	ctx := context.Background()
	f := initialized(t)

	tests := []struct {
		name string
		cfg  domain.PoolConfig
		want error
	}{
		{"empty name", domain.PoolConfig{TargetAmount: domain.NewAmount(1), Duration: 1}, ErrInvalidPoolName},
		{"zero target", domain.PoolConfig{Name: "p", Duration: 1}, ErrInvalidPoolTarget},
		{"zero duration", domain.PoolConfig{Name: "p", TargetAmount: domain.NewAmount(1)}, ErrInvalidPoolDeadline},
		{"wrapping duration", domain.PoolConfig{
			Name: "p", TargetAmount: domain.NewAmount(1), Duration: math.MaxUint64 - t0 + 2,
		}, ErrInvalidPoolDeadline},
		{"refund window past int64", domain.PoolConfig{
			Name: "p", TargetAmount: domain.NewAmount(1), Duration: maxPoolDeadline - t0 + 1,
		}, ErrInvalidPoolDeadline},
		{"long description", domain.PoolConfig{
			Name: "p", TargetAmount: domain.NewAmount(1), Duration: 1,
			Description: strings.Repeat("d", domain.MaxDescriptionLength+1),
		}, ErrInvalidMetadata},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreatePool(ctx, auth.As(alice), tt.cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPool_MultiSigConfig(t *testing.T) {
	ctx := context.Background()
	f := initialized(t)

	id, err := f.engine.SavePool(ctx, auth.As(alice), SavePoolParams{
		Name:               "board",
		Metadata:           domain.PoolMetadata{Description: "d", ExternalURL: "https://example.org", ImageHash: "abc"},
		TargetAmount:       domain.NewAmount(100),
		Deadline:           t0 + 60,
		RequiredSignatures: uint32Ptr(2),
		Signers:            []domain.Address{alice, bob, admin},
	})
	require.NoError(t, err)

	ms, err := f.engine.GetMultiSigConfig(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, ms)
	assert.Equal(t, uint32(2), ms.RequiredSignatures)
	assert.Equal(t, []domain.Address{alice, bob, admin}, ms.Signers)

	md, err := f.engine.GetPoolMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org", md.ExternalURL)

	plain := f.pool(t, 10, 60)
	ms, err = f.engine.GetMultiSigConfig(ctx, plain)
	require.NoError(t, err)
	assert.Nil(t, ms)

	_, err = f.engine.GetMultiSigConfig(ctx, 99)
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestPool_UpdateStateFrozenStates(t *testing.T) {
	ctx := context.Background()

	for _, frozen := range []domain.PoolState{domain.PoolCompleted, domain.PoolCancelled} {
		t.Run(frozen.String(), func(t *testing.T) {
			f := initialized(t)
			id := f.pool(t, 100, 60)
			require.NoError(t, f.engine.UpdatePoolState(ctx, id, frozen))

			for target := domain.PoolActive; target <= domain.PoolClosed; target++ {
				err := f.engine.UpdatePoolState(ctx, id, target)
				assert.ErrorIs(t, err, ErrInvalidPoolState, "target %s", target)
			}

			state, err := f.engine.GetPoolState(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, frozen, state)
		})
	}
}

func TestPool_UpdateState(t *testing.T) {
	ctx := context.Background()
	f := initialized(t)
	id := f.pool(t, 100, 60)

	assert.ErrorIs(t, f.engine.UpdatePoolState(ctx, 42, domain.PoolPaused), ErrPoolNotFound)
	assert.ErrorIs(t, f.engine.UpdatePoolState(ctx, id, domain.PoolClosed), ErrInvalidPoolState)

	require.NoError(t, f.engine.UpdatePoolState(ctx, id, domain.PoolPaused))
	require.NoError(t, f.engine.UpdatePoolState(ctx, id, domain.PoolActive))
	require.NoError(t, f.engine.UpdatePoolState(ctx, id, domain.PoolDisbursed))

	updates := f.events.ByTopic(events.TopicPoolStateUpdated)
	require.Len(t, updates, 3)
	assert.Equal(t, "DISBURSED", updates[2].Attrs["state"])
}

func TestPool_Close(t *testing.T) {
	ctx := context.Background()
	f := initialized(t)
	disbursed := f.pool(t, 100, 60)
	cancelled := f.pool(t, 100, 60)
	active := f.pool(t, 100, 60)
	require.NoError(t, f.engine.UpdatePoolState(ctx, disbursed, domain.PoolDisbursed))
	require.NoError(t, f.engine.UpdatePoolState(ctx, cancelled, domain.PoolCancelled))

	assert.ErrorIs(t, f.engine.ClosePool(ctx, auth.As(admin), 99), ErrPoolNotFound)
	assert.ErrorIs(t, f.engine.ClosePool(ctx, auth.As(admin), active), ErrPoolNotDisbursedOrRefunded)
	assert.ErrorIs(t, f.engine.ClosePool(ctx, auth.As(bob), disbursed), ErrUnauthorized)

	for _, id := range []uint64{disbursed, cancelled} {
		require.NoError(t, f.engine.ClosePool(ctx, auth.As(admin), id))

		closed, err := f.engine.IsClosed(ctx, id)
		require.NoError(t, err)
		assert.True(t, closed)

		assert.ErrorIs(t, f.engine.ClosePool(ctx, auth.As(admin), id), ErrPoolAlreadyClosed)
	}

	closed, err := f.engine.IsClosed(ctx, active)
	require.NoError(t, err)
	assert.False(t, closed)

	assert.Len(t, f.events.ByTopic(events.TopicPoolClosed), 2)
}

func TestPool_CloseBeforeInitialization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, err := f.engine.CreatePool(ctx, auth.As(alice), domain.PoolConfig{
		Name: "p", TargetAmount: domain.NewAmount(1), Duration: 5,
	})
	require.NoError(t, err)
	require.NoError(t, f.engine.UpdatePoolState(ctx, id, domain.PoolDisbursed))

	assert.ErrorIs(t, f.engine.ClosePool(ctx, auth.As(admin), id), ErrNotInitialized)
}

func TestPool_Contribute(t *testing.T) {
	ctx := context.Background()
	f := initialized(t)
	id := f.pool(t, 1000, 60)

	require.NoError(t, f.engine.Contribute(ctx, auth.As(bob), id, usdc, domain.NewAmount(100), false))
	f.clock.Advance(5)
	require.NoError(t, f.engine.Contribute(ctx, auth.As(bob), id, usdc, domain.NewAmount(50), true))
	require.NoError(t, f.engine.Contribute(ctx, auth.As(alice), id, usdc, domain.NewAmount(10), false))

	m, err := f.engine.GetPoolMetrics(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "160", m.TotalRaised.String())
	assert.Equal(t, uint32(2), m.ContributorCount)
	assert.Equal(t, t0+5, m.LastDonationAt)

	c, err := f.engine.GetPoolContribution(ctx, id, bob)
	require.NoError(t, err)
	assert.Equal(t, "150", c.Amount.String())
	assert.Equal(t, usdc, c.Asset)

	none, err := f.engine.GetPoolContribution(ctx, id, admin)
	require.NoError(t, err)
	assert.True(t, none.Amount.IsZero())

	assert.Equal(t, "160", f.balance(t, vault))
	assert.Len(t, f.events.ByTopic(events.TopicContribution), 3)
}

func TestPool_ContributeRejections(t *testing.T) {
	ctx := context.Background()
	f := initialized(t)
	id := f.pool(t, 1000, 60)
	const eurc domain.Address = "eurc"
	require.NoError(t, f.tokens.Mint(context.Background(), eurc, bob, domain.NewAmount(100)))

	assert.ErrorIs(t, f.engine.Contribute(ctx, auth.As(bob), id, usdc, domain.ZeroAmount(), false), ErrInvalidAmount)
	assert.ErrorIs(t, f.engine.Contribute(ctx, auth.As(bob), 7, usdc, domain.NewAmount(1), false), ErrPoolNotFound)
	assert.ErrorIs(t, f.engine.Contribute(ctx, auth.As(""), id, usdc, domain.NewAmount(1), false), ErrUnauthorized)

	require.NoError(t, f.engine.Contribute(ctx, auth.As(bob), id, usdc, domain.NewAmount(1), false))
	assert.ErrorIs(t, f.engine.Contribute(ctx, auth.As(bob), id, eurc, domain.NewAmount(1), false), ErrTokenTransferFailed)

	require.NoError(t, f.engine.UpdatePoolState(ctx, id, domain.PoolPaused))
	assert.ErrorIs(t, f.engine.Contribute(ctx, auth.As(bob), id, usdc, domain.NewAmount(1), false), ErrInvalidPoolState)

	m, err := f.engine.GetPoolMetrics(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "1", m.TotalRaised.String())
}
