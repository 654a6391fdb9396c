package replay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"crowdfund-ledger/internal/auth"
	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/storage/memory"
	"crowdfund-ledger/internal/token"
)

func run(t *testing.T, sc *Scenario) *Report {
	t.Helper()
	report, err := NewRunner(memory.NewStore(), WithLogger(zaptest.NewLogger(t))).Run(context.Background(), sc)
	require.NoError(t, err)
	return report
}

func load(t *testing.T, name string) *Scenario {
	t.Helper()
	sc, err := LoadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return sc
}

func TestRunner_PoolRefundScenario(t *testing.T) {
	report := run(t, load(t, "pool_refund.yaml"))

	for _, st := range report.Steps {
		assert.True(t, st.Pass, "step %d %s: expected %s, got %s (%s)", st.Index, st.Op, st.Expect, st.Got, st.Detail)
	}
	assert.True(t, report.OK())
	assert.Equal(t, 10, report.Passed)

	refund := report.Steps[5]
	assert.Equal(t, uint64(1700000000+86400+604800+1), refund.At)

	assert.Contains(t, report.Holdings, Holding{Asset: "usdc", Holder: "bob", Balance: "1000"})
	assert.Equal(t, "pool_id=1", report.Steps[1].Detail)
}

func TestRunner_CampaignFundingScenario(t *testing.T) {
	report := run(t, load(t, "campaign_funding.yaml"))

	for _, st := range report.Steps {
		assert.True(t, st.Pass, "step %d %s: expected %s, got %s (%s)", st.Index, st.Op, st.Expect, st.Got, st.Detail)
	}
	assert.Contains(t, report.Holdings, Holding{Asset: "usdc", Holder: "vault", Balance: "510"})
	assert.Contains(t, report.Holdings, Holding{Asset: "usdc", Holder: "alice", Balance: "990"})

	var topics []string
	for _, e := range report.Events {
		topics = append(topics, e.Topic)
	}
	assert.Equal(t, []string{
		events.TopicCreationFeePaid,
		events.TopicCampaignCreated,
		events.TopicDonationMade,
		events.TopicDonationMade,
		events.TopicContractPaused,
	}, topics)
}

func TestRunner_RecordsMismatches(t *testing.T) {
	sc := &Scenario{
		Name:  "mismatch",
		Start: 100,
		Steps: []Step{
			{Op: "pause", Caller: "admin"},
			{Op: "check_pool_state", Args: map[string]string{"pool": "1", "state": "ACTIVE"}, Expect: "POOL_NOT_FOUND"},
		},
	}
	report := run(t, sc)

	require.Len(t, report.Steps, 2)
	assert.False(t, report.Steps[0].Pass)
	assert.Equal(t, "NOT_INITIALIZED", report.Steps[0].Got)
	assert.True(t, report.Steps[1].Pass)
	assert.False(t, report.OK())
	assert.Equal(t, 1, report.Failed)
}

func TestRunner_CheckFailure(t *testing.T) {
	sc := &Scenario{
		Name: "check",
		Mint: []Mint{{Asset: "usdc", To: "alice", Amount: "5"}},
		Steps: []Step{
			{Op: "check_balance", Args: map[string]string{"asset": "usdc", "holder": "alice", "equals": "6"}},
		},
	}
	report := run(t, sc)

	require.Len(t, report.Steps, 1)
	assert.Equal(t, OutcomeCheckFailed, report.Steps[0].Got)
	assert.Equal(t, "balance=5", report.Steps[0].Detail)
}

func TestRunner_ArgumentErrorAborts(t *testing.T) {
	sc := &Scenario{
		Name:  "bad args",
		Steps: []Step{{Op: "set_creation_fee", Caller: "admin", Args: map[string]string{"fee": "lots"}}},
	}
	_, err := NewRunner(memory.NewStore()).Run(context.Background(), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `arg "fee"`)
}

func TestParse_Validation(t *testing.T) {
	_, err := Parse([]byte("name: empty\n"))
	assert.ErrorIs(t, err, ErrInvalidScenario)

	_, err = Parse([]byte("steps:\n  - op: fly\n"))
	assert.ErrorIs(t, err, ErrInvalidScenario)

	_, err = Parse([]byte("start: 100\nsteps:\n  - op: pause\n    at: 50\n"))
	assert.ErrorIs(t, err, ErrInvalidOrdering)

	_, err = Parse([]byte("steps:\n  - op: pause\n    advance: 10\n  - op: unpause\n    at: 5\n"))
	assert.ErrorIs(t, err, ErrInvalidOrdering)

	_, err = Parse([]byte("mint:\n  - {asset: usdc}\nsteps:\n  - op: pause\n"))
	assert.ErrorIs(t, err, ErrInvalidScenario)

	_, err = Parse([]byte("steps: [[["))
	assert.ErrorIs(t, err, ErrInvalidScenario)
}

func TestRunner_ForwardsEventsToSinks(t *testing.T) {
	extra := events.NewLog()
	sc := &Scenario{
		Name: "sinks",
		Steps: []Step{
			{Op: "initialize", Args: map[string]string{"admin": "admin"}},
			{Op: "pause", Caller: "admin"},
		},
	}
	_, err := NewRunner(memory.NewStore(), WithSinks(extra)).Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, []string{events.TopicContractPaused}, extra.Topics())
}

func TestRunner_SignedCallers(t *testing.T) {
	for _, name := range []string{"pool_refund.yaml", "campaign_funding.yaml"} {
		t.Run(name, func(t *testing.T) {
			report, err := NewRunner(memory.NewStore(), WithSignedCallers()).Run(context.Background(), load(t, name))
			require.NoError(t, err)
			for _, st := range report.Steps {
				assert.True(t, st.Pass, "step %d %s: expected %s, got %s (%s)", st.Index, st.Op, st.Expect, st.Got, st.Detail)
			}
		})
	}
}

func TestRunner_SignedCallersRejectKeylessActors(t *testing.T) {
	sc := &Scenario{
		Name: "keyless",
		Steps: []Step{
			{Op: "initialize", Args: map[string]string{"admin": "vault"}},
			{Op: "pause", Caller: "vault", Expect: "UNAUTHORIZED"},
		},
	}
	report, err := NewRunner(memory.NewStore(), WithSignedCallers()).Run(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, report.OK(), "got %+v", report.Steps)
}

func TestSigner_NoncesAdvancePerActor(t *testing.T) {
	ctx := context.Background()
	keys := newKeyring("s")
	alice := keys.add("alice")
	s := &signer{keys: keys, verify: auth.NewEd25519()}

	action := auth.NewAction("refund", "1")
	require.NoError(t, s.Authorize(ctx, auth.As(alice), alice, action))
	require.NoError(t, s.Authorize(ctx, auth.As(alice), alice, action))

	replayed := auth.Sign(keys.keys[alice], action, 1)
	assert.ErrorIs(t, s.Authorize(ctx, replayed, alice, action), auth.ErrReplayedNonce)
	assert.Equal(t, alice, newKeyring("s").add("alice"))
	assert.NotEqual(t, alice, newKeyring("other").add("alice"))
}

// remoteLedger serves the token JSON-RPC methods from an in-memory ledger.
func remoteLedger(t *testing.T) (*httptest.Server, *token.Ledger) {
	t.Helper()
	l := token.NewLedger()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		addr := func(i int) domain.Address {
			var a domain.Address
			if err := json.Unmarshal(req.Params[i], &a); err != nil {
				t.Errorf("param %d: %v", i, err)
			}
			return a
		}
		amount := func(i int) domain.Amount {
			var a domain.Amount
			if err := json.Unmarshal(req.Params[i], &a); err != nil {
				t.Errorf("param %d: %v", i, err)
			}
			return a
		}

		var result interface{}
		var err error
		switch req.Method {
		case "token_balance":
			var bal domain.Amount
			bal, err = l.Balance(r.Context(), addr(0), addr(1))
			result = map[string]interface{}{"amount": bal}
		case "token_transfer":
			err = l.Transfer(r.Context(), addr(0), addr(1), addr(2), amount(3))
		case "token_mint":
			err = l.Mint(r.Context(), addr(0), addr(1), amount(2))
		default:
			t.Errorf("unexpected method %s", req.Method)
		}

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result}
		if errors.Is(err, token.ErrInsufficientBalance) {
			resp["error"] = map[string]interface{}{"code": -32010, "message": err.Error()}
		} else if err != nil {
			resp["error"] = map[string]interface{}{"code": -32000, "message": err.Error()}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server, l
}

func TestRunner_RemoteGateway(t *testing.T) {
	server, remote := remoteLedger(t)
	gw := token.NewRPCClient(server.URL, token.WithMaxRetries(0))

	report, err := NewRunner(memory.NewStore(), WithGateway(gw), WithSignedCallers()).
		Run(context.Background(), load(t, "campaign_funding.yaml"))
	require.NoError(t, err)

	for _, st := range report.Steps {
		assert.True(t, st.Pass, "step %d %s: expected %s, got %s (%s)", st.Index, st.Op, st.Expect, st.Got, st.Detail)
	}
	assert.Contains(t, report.Holdings, Holding{Asset: "usdc", Holder: "vault", Balance: "510"})
	assert.Contains(t, report.Holdings, Holding{Asset: "usdc", Holder: "alice", Balance: "990"})
	assert.NotEmpty(t, remote.Snapshot())
}

type balanceOnly struct{ token.Gateway }

func TestRunner_MintNeedsMinter(t *testing.T) {
	sc := &Scenario{
		Name:  "no mint",
		Mint:  []Mint{{Asset: "usdc", To: "alice", Amount: "5"}},
		Steps: []Step{{Op: "pause", Caller: "admin", Expect: "NOT_INITIALIZED"}},
	}
	_, err := NewRunner(memory.NewStore(), WithGateway(balanceOnly{token.NewLedger()})).Run(context.Background(), sc)
	assert.ErrorIs(t, err, ErrInvalidScenario)
}
