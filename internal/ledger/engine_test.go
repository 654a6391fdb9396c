package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"crowdfund-ledger/internal/auth"
	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/storage"
	"crowdfund-ledger/internal/storage/memory"
	"crowdfund-ledger/internal/token"
)

const (
	t0 uint64 = 1_700_000_000

	usdc  domain.Address = "usdc"
	admin domain.Address = "admin"
	alice domain.Address = "alice"
	bob   domain.Address = "bob"
	vault domain.Address = "vault"
)

type fixture struct {
	engine *Engine
	store  storage.Store
	tokens *token.Ledger
	events *events.Log
	clock  *ManualClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.NewStore(), opts...)
}

func newFixtureWithStore(t *testing.T, store storage.Store, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		store:  store,
		tokens: token.NewLedger(),
		events: events.NewLog(),
		clock:  NewManualClock(t0),
	}
	opts = append([]Option{
		WithSink(f.events),
		WithClock(f.clock),
		WithLogger(zaptest.NewLogger(t)),
	}, opts...)
	f.engine = New(store, f.tokens, vault, opts...)

	require.NoError(t, f.tokens.Mint(context.Background(), usdc, alice, domain.NewAmount(10_000)))
	require.NoError(t, f.tokens.Mint(context.Background(), usdc, bob, domain.NewAmount(10_000)))
	return f
}

// initialized returns a fixture with admin, usdc and a zero creation fee set.
func initialized(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := newFixture(t, opts...)
	require.NoError(t, f.engine.Initialize(context.Background(), admin, usdc, domain.ZeroAmount()))
	return f
}

func (f *fixture) balance(t *testing.T, addr domain.Address) string {
	t.Helper()
	b, err := f.tokens.Balance(context.Background(), usdc, addr)
	require.NoError(t, err)
	return b.String()
}

func (f *fixture) campaign(t *testing.T, title string, goal int64) domain.CampaignID {
	t.Helper()
	var id domain.CampaignID
	copy(id[:], title)
	require.NoError(t, f.engine.CreateCampaign(context.Background(), auth.As(alice), CampaignParams{
		ID:       id,
		Title:    title,
		Goal:     domain.NewAmount(goal),
		Deadline: f.clock.Now() + 86400,
	}))
	return id
}

// commitFailingStore runs every update to completion, then reports a commit
// failure so the underlying store rolls back.
type commitFailingStore struct {
	storage.Store
}

var errCommit = errors.New("commit failed")

func (s commitFailingStore) Update(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.Store.Update(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return errCommit
	})
}

type failingSink struct{}

func (failingSink) Publish(context.Context, events.Event) error {
	return errors.New("sink down")
}

func TestEngine_FailedTransferRollsBackWrites(t *testing.T) {
	ctx := context.Background()
	f := initialized(t)
	id := f.campaign(t, "roof", 1000)

	err := f.engine.Donate(ctx, auth.As(alice), id, usdc, domain.NewAmount(20_000))
	require.ErrorIs(t, err, ErrTokenTransferFailed)
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)

	c, err := f.engine.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.True(t, c.TotalRaised.IsZero())

	count, err := f.engine.GetDonorCount(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, count)

	got, err := f.engine.GetContribution(ctx, id, alice)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	assert.Empty(t, f.events.ByTopic(events.TopicDonationMade))
}

func TestEngine_FailedCommitReversesTransfers(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStore()
	setup := newFixtureWithStore(t, inner)
	require.NoError(t, setup.engine.Initialize(ctx, admin, usdc, domain.ZeroAmount()))
	id := setup.campaign(t, "roof", 1000)

	f := newFixtureWithStore(t, commitFailingStore{Store: inner})
	f.tokens = setup.tokens
	f.engine.gateway = setup.tokens

	err := f.engine.Donate(ctx, auth.As(alice), id, usdc, domain.NewAmount(300))
	require.ErrorIs(t, err, errCommit)

	assert.Equal(t, "10000", f.balance(t, alice))
	assert.Equal(t, "0", f.balance(t, vault))
	assert.Empty(t, f.events.Events())

	total, err := setup.engine.GetTotalRaised(ctx, id)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestEngine_SinkFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithSink(failingSink{}))

	require.NoError(t, f.engine.Initialize(ctx, admin, usdc, domain.ZeroAmount()))
	require.NoError(t, f.engine.Pause(ctx, auth.As(admin)))

	paused, err := f.engine.IsPaused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)
}

func TestEngine_EventsPublishedInOrderAfterCommit(t *testing.T) {
	ctx := context.Background()
	f := initialized(t)
	require.NoError(t, f.engine.SetCreationFee(ctx, auth.As(admin), domain.NewAmount(5)))

	id := f.campaign(t, "roof", 1000)
	require.NoError(t, f.engine.Donate(ctx, auth.As(bob), id, usdc, domain.NewAmount(10)))

	assert.Equal(t, []string{
		events.TopicCreationFeeSet,
		events.TopicCreationFeePaid,
		events.TopicCampaignCreated,
		events.TopicDonationMade,
	}, f.events.Topics())

	for _, ev := range f.events.Events() {
		assert.Equal(t, t0, ev.At)
	}
}

func TestEngine_SignedCallers(t *testing.T) {
	ctx := context.Background()
	f := initialized(t, WithAuthorizer(auth.NewEd25519()))

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	donor := domain.AddressFromPublicKey(pub)
	require.NoError(t, f.tokens.Mint(context.Background(), usdc, donor, domain.NewAmount(500)))

	poolID, err := f.engine.SavePool(ctx, auth.Sign(priv, auth.NewAction("save_pool", savePoolArgs(SavePoolParams{
		Name:         "well",
		TargetAmount: domain.NewAmount(1000),
		Deadline:     t0 + 100,
	})...), 1), SavePoolParams{
		Name:         "well",
		TargetAmount: domain.NewAmount(1000),
		Deadline:     t0 + 100,
	})
	require.NoError(t, err)

	amount := domain.NewAmount(200)
	action := auth.NewAction("contribute", u64(poolID), usdc.String(), amount.String(), "false")

	// Unsigned caller claiming the donor's address.
	err = f.engine.Contribute(ctx, auth.As(donor), poolID, usdc, amount, false)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.engine.Contribute(ctx, auth.Sign(priv, action, 2), poolID, usdc, amount, false))

	// Same nonce again.
	err = f.engine.Contribute(ctx, auth.Sign(priv, action, 2), poolID, usdc, amount, false)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, auth.ErrReplayedNonce)

	// Signed for a different amount.
	err = f.engine.Contribute(ctx, auth.Sign(priv, action, 3), poolID, usdc, domain.NewAmount(201), false)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, "300", f.balance(t, donor))
	assert.Equal(t, "200", f.balance(t, vault))
}

func TestEngine_NonceConsumedByRejectedOperation(t *testing.T) {
	ctx := context.Background()
	f := initialized(t, WithAuthorizer(auth.NewEd25519()))

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	donor := domain.AddressFromPublicKey(pub)
	require.NoError(t, f.tokens.Mint(ctx, usdc, donor, domain.NewAmount(500)))

	amount := domain.NewAmount(200)
	action := auth.NewAction("contribute", u64(7), usdc.String(), amount.String(), "false")

	err = f.engine.Contribute(ctx, auth.Sign(priv, action, 1), 7, usdc, amount, false)
	require.ErrorIs(t, err, ErrPoolNotFound)

	err = f.engine.Contribute(ctx, auth.Sign(priv, action, 1), 7, usdc, amount, false)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, auth.ErrReplayedNonce)

	err = f.engine.Contribute(ctx, auth.Sign(priv, action, 2), 7, usdc, amount, false)
	assert.ErrorIs(t, err, ErrPoolNotFound)
	assert.Equal(t, "500", f.balance(t, donor))
}

func TestEngine_ReadsAreNotSerializedBehindWrites(t *testing.T) {
	ctx := context.Background()
	f := initialized(t)
	id := f.campaign(t, "roof", 1000)

	f.engine.mu.Lock()
	defer f.engine.mu.Unlock()

	c, err := f.engine.GetCampaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "roof", c.Title)
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(10)
	c.Advance(5)
	assert.Equal(t, uint64(15), c.Now())
	c.Set(3)
	assert.Equal(t, uint64(3), c.Now())
}
