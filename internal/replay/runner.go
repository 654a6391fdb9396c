package replay

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"crowdfund-ledger/internal/auth"
	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/events"
	"crowdfund-ledger/internal/idhash"
	"crowdfund-ledger/internal/ledger"
	"crowdfund-ledger/internal/storage"
	"crowdfund-ledger/internal/token"
)

// Outcome codes that are not ledger rejection codes.
const (
	OutcomeOK          = "OK"
	OutcomeCheckFailed = "CHECK_FAILED"
)

// StepResult is the observed outcome of one step.
type StepResult struct {
	Index  int    `json:"index" yaml:"index"`
	Op     string `json:"op" yaml:"op"`
	At     uint64 `json:"at" yaml:"at"`
	Expect string `json:"expect" yaml:"expect"`
	Got    string `json:"got" yaml:"got"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Pass   bool   `json:"pass" yaml:"pass"`
}

// Holding is a final balance keyed by scenario labels where known.
type Holding struct {
	Asset   string `json:"asset" yaml:"asset"`
	Holder  string `json:"holder" yaml:"holder"`
	Balance string `json:"balance" yaml:"balance"`
}

// Report summarizes a run.
type Report struct {
	Scenario string         `json:"scenario" yaml:"scenario"`
	Steps    []StepResult   `json:"steps" yaml:"steps"`
	Passed   int            `json:"passed" yaml:"passed"`
	Failed   int            `json:"failed" yaml:"failed"`
	Holdings []Holding      `json:"holdings" yaml:"holdings"`
	Events   []events.Event `json:"events" yaml:"-"`
}

// OK reports whether every step matched its expectation.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Runner replays scenarios against a ledger state store.
type Runner struct {
	store   storage.Store
	logger  *zap.Logger
	sinks   []events.Sink
	gateway token.Gateway
	signed  bool
}

// Option configures Runner.
type Option func(*Runner)

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSinks adds sinks that receive every event.
func WithSinks(sinks ...events.Sink) Option {
	return func(r *Runner) {
		r.sinks = append(r.sinks, sinks...)
	}
}

// WithGateway moves funds through gw instead of a fresh in-memory ledger per
// run. Scenario mints require gw to implement token.Minter.
func WithGateway(gw token.Gateway) Option {
	return func(r *Runner) {
		r.gateway = gw
	}
}

// WithSignedCallers gives every scenario actor an ed25519 key and verifies
// each operation's signature and nonce with auth.Ed25519.
func WithSignedCallers() Option {
	return func(r *Runner) {
		r.signed = true
	}
}

// NewRunner creates a runner over store.
func NewRunner(store storage.Store, opts ...Option) *Runner {
	r := &Runner{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every step in order. A step whose outcome differs from its
// expectation is recorded as failed and the run continues; argument errors
// and infrastructure failures abort the run.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	vault, err := idhash.VaultAddress("replay:" + sc.Name)
	if err != nil {
		return nil, fmt.Errorf("derive vault: %w", err)
	}

	gateway := r.gateway
	if gateway == nil {
		gateway = token.NewLedger()
	}

	var keys *keyring
	var authz auth.Authorizer = auth.Trusted{}
	if r.signed {
		keys = newKeyring(sc.Name)
		authz = &signer{keys: keys, verify: auth.NewEd25519()}
	}

	clock := ledger.NewManualClock(sc.Start)
	log := events.NewLog()
	engine := ledger.New(r.store, gateway, vault,
		ledger.WithClock(clock),
		ledger.WithSink(append(events.Multi{log}, r.sinks...)),
		ledger.WithAuthorizer(authz),
		ledger.WithLogger(r.logger),
	)
	nm := newNames(vault, keys)

	if len(sc.Mint) > 0 {
		minter, ok := gateway.(token.Minter)
		if !ok {
			return nil, fmt.Errorf("%w: gateway %T cannot mint", ErrInvalidScenario, gateway)
		}
		for i, m := range sc.Mint {
			amount, err := domain.ParseAmount(m.Amount)
			if err != nil {
				return nil, fmt.Errorf("mint %d: %w", i, err)
			}
			if err := minter.Mint(ctx, nm.addr(m.Asset), nm.addr(m.To), amount); err != nil {
				return nil, fmt.Errorf("mint %d: %w", i, err)
			}
		}
	}

	report := &Report{Scenario: sc.Name}
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if st.At != 0 {
			clock.Set(st.At)
		}
		clock.Advance(st.Advance)

		c := &call{
			engine: engine,
			tokens: gateway,
			names:  nm,
			caller: auth.As(nm.addr(st.Caller)),
			now:    clock.Now(),
			args:   st.Args,
		}
		if c.args == nil {
			c.args = map[string]string{}
		}

		detail, opErr := operations[st.Op](ctx, c)
		if c.err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, st.Op, c.err)
		}
		got, err := outcome(opErr)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, st.Op, err)
		}

		expect := st.Expect
		if expect == "" {
			expect = OutcomeOK
		}
		res := StepResult{
			Index:  i,
			Op:     st.Op,
			At:     clock.Now(),
			Expect: expect,
			Got:    got,
			Detail: detail,
			Pass:   got == expect,
		}
		if opErr != nil && detail == "" {
			res.Detail = opErr.Error()
		}
		if res.Pass {
			report.Passed++
		} else {
			report.Failed++
			r.logger.Warn("step did not match expectation",
				zap.Int("step", i),
				zap.String("op", st.Op),
				zap.String("expect", expect),
				zap.String("got", got),
			)
		}
		report.Steps = append(report.Steps, res)
	}

	report.Holdings, err = holdings(ctx, gateway, nm, sc)
	if err != nil {
		return nil, err
	}
	report.Events = log.Events()
	return report, nil
}

// holdings lists final balances. The in-memory ledger reports every non-zero
// balance; other gateways are asked for each minted asset and named account.
func holdings(ctx context.Context, gw token.Gateway, nm *names, sc *Scenario) ([]Holding, error) {
	var out []Holding
	if l, ok := gw.(*token.Ledger); ok {
		for _, h := range l.Snapshot() {
			out = append(out, Holding{
				Asset:   nm.label(h.Asset),
				Holder:  nm.label(h.Holder),
				Balance: h.Balance.String(),
			})
		}
	} else {
		seen := map[string]bool{}
		for _, m := range sc.Mint {
			if seen[m.Asset] {
				continue
			}
			seen[m.Asset] = true
			for _, holder := range nm.known() {
				bal, err := gw.Balance(ctx, nm.addr(m.Asset), holder)
				if err != nil {
					return nil, fmt.Errorf("balance of %s: %w", nm.label(holder), err)
				}
				if bal.IsZero() {
					continue
				}
				out = append(out, Holding{Asset: m.Asset, Holder: nm.label(holder), Balance: bal.String()})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Asset != out[j].Asset {
			return out[i].Asset < out[j].Asset
		}
		return out[i].Holder < out[j].Holder
	})
	return out, nil
}

// outcome maps an operation error to a code. Errors that are neither ledger
// rejections nor failed checks are returned.
func outcome(err error) (string, error) {
	if err == nil {
		return OutcomeOK, nil
	}
	if errors.Is(err, ErrCheckFailed) {
		return OutcomeCheckFailed, nil
	}
	if code, ok := ledger.CodeOf(err); ok {
		return string(code), nil
	}
	return "", err
}

// names maps scenario labels to stable addresses and back.
type names struct {
	keys      *keyring
	addrs     map[string]domain.Address
	labels    map[domain.Address]string
	campaigns map[string]domain.CampaignID
}

func newNames(vault domain.Address, keys *keyring) *names {
	return &names{
		keys:      keys,
		addrs:     map[string]domain.Address{"vault": vault},
		labels:    map[domain.Address]string{vault: "vault"},
		campaigns: map[string]domain.CampaignID{},
	}
}

// addr resolves a label. Empty stays empty so optional addresses remain unset.
func (n *names) addr(label string) domain.Address {
	if label == "" {
		return ""
	}
	if a, ok := n.addrs[label]; ok {
		return a
	}
	var a domain.Address
	if n.keys != nil {
		a = n.keys.add(label)
	} else {
		a = idhash.AddressFromSeed(label)
	}
	n.addrs[label] = a
	n.labels[a] = label
	return a
}

func (n *names) label(a domain.Address) string {
	if l, ok := n.labels[a]; ok {
		return l
	}
	return a.String()
}

// known returns every resolved address.
func (n *names) known() []domain.Address {
	out := make([]domain.Address, 0, len(n.labels))
	for a := range n.labels {
		out = append(out, a)
	}
	return out
}
