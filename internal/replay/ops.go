package replay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"crowdfund-ledger/internal/auth"
	"crowdfund-ledger/internal/domain"
	"crowdfund-ledger/internal/idhash"
	"crowdfund-ledger/internal/ledger"
	"crowdfund-ledger/internal/token"
)

// ErrCheckFailed is returned by check_* steps whose observed value differs.
var ErrCheckFailed = errors.New("check failed")

// call carries one step's resolved inputs into an operation.
type call struct {
	engine *ledger.Engine
	tokens token.Gateway
	names  *names
	caller auth.Caller
	now    uint64
	args   map[string]string
	err    error // first argument error
}

type operation func(ctx context.Context, c *call) (string, error)

var operations = map[string]operation{
	"initialize":                 opInitialize,
	"pause":                      opPause,
	"unpause":                    opUnpause,
	"set_crowdfunding_token":     opSetCrowdfundingToken,
	"set_creation_fee":           opSetCreationFee,
	"create_campaign":            opCreateCampaign,
	"donate":                     opDonate,
	"create_pool":                opCreatePool,
	"save_pool":                  opSavePool,
	"update_pool_state":          opUpdatePoolState,
	"close_pool":                 opClosePool,
	"contribute":                 opContribute,
	"refund":                     opRefund,
	"request_emergency_withdraw": opRequestEmergencyWithdraw,
	"execute_emergency_withdraw": opExecuteEmergencyWithdraw,
	"check_balance":              opCheckBalance,
	"check_total_raised":         opCheckTotalRaised,
	"check_pool_state":           opCheckPoolState,
	"check_pool_raised":          opCheckPoolRaised,
}

func opInitialize(ctx context.Context, c *call) (string, error) {
	adminAddr, tokenAddr, fee := c.addr("admin"), c.addr("token"), c.amountOr("fee", domain.ZeroAmount())
	if c.err != nil {
		return "", c.err
	}
	return "", c.engine.Initialize(ctx, adminAddr, tokenAddr, fee)
}

func opPause(ctx context.Context, c *call) (string, error) {
	return "", c.engine.Pause(ctx, c.caller)
}

func opUnpause(ctx context.Context, c *call) (string, error) {
	return "", c.engine.Unpause(ctx, c.caller)
}

func opSetCrowdfundingToken(ctx context.Context, c *call) (string, error) {
	tokenAddr := c.addr("token")
	if c.err != nil {
		return "", c.err
	}
	return "", c.engine.SetCrowdfundingToken(ctx, c.caller, tokenAddr)
}

func opSetCreationFee(ctx context.Context, c *call) (string, error) {
	fee := c.amount("fee")
	if c.err != nil {
		return "", c.err
	}
	return "", c.engine.SetCreationFee(ctx, c.caller, fee)
}

func opCreateCampaign(ctx context.Context, c *call) (string, error) {
	label := c.required("id")
	p := ledger.CampaignParams{
		Title:    c.args["title"],
		Goal:     c.amount("goal"),
		Deadline: c.deadline(),
		Token:    c.addr("token"),
	}
	if c.err != nil {
		return "", c.err
	}
	p.ID = idhash.ComputeCampaignID(c.caller.Address, label, 0)
	c.names.campaigns[label] = p.ID

	if err := c.engine.CreateCampaign(ctx, c.caller, p); err != nil {
		return "", err
	}
	return "campaign_id=" + p.ID.String(), nil
}

func opDonate(ctx context.Context, c *call) (string, error) {
	id, asset, amount := c.campaign("campaign"), c.addr("asset"), c.amount("amount")
	if c.err != nil {
		return "", c.err
	}
	return "", c.engine.Donate(ctx, c.caller, id, asset, amount)
}

func opCreatePool(ctx context.Context, c *call) (string, error) {
	cfg := domain.PoolConfig{
		Name:         c.args["name"],
		Description:  c.args["description"],
		TargetAmount: c.amount("target"),
		IsPrivate:    c.boolean("private"),
		Duration:     c.u64Or("duration", 0),
	}
	if c.err != nil {
		return "", c.err
	}
	id, err := c.engine.CreatePool(ctx, c.caller, cfg)
	if err != nil {
		return "", err
	}
	return "pool_id=" + strconv.FormatUint(id, 10), nil
}

func opSavePool(ctx context.Context, c *call) (string, error) {
	p := ledger.SavePoolParams{
		Name: c.args["name"],
		Metadata: domain.PoolMetadata{
			Description: c.args["description"],
			ExternalURL: c.args["external_url"],
			ImageHash:   c.args["image_hash"],
		},
		TargetAmount:       c.amount("target"),
		Deadline:           c.deadline(),
		RequiredSignatures: c.optU32("required_signatures"),
		Signers:            c.addrs("signers"),
	}
	if c.err != nil {
		return "", c.err
	}
	id, err := c.engine.SavePool(ctx, c.caller, p)
	if err != nil {
		return "", err
	}
	return "pool_id=" + strconv.FormatUint(id, 10), nil
}

func opUpdatePoolState(ctx context.Context, c *call) (string, error) {
	poolID, state := c.u64("pool"), c.state("state")
	if c.err != nil {
		return "", c.err
	}
	return "", c.engine.UpdatePoolState(ctx, poolID, state)
}

func opClosePool(ctx context.Context, c *call) (string, error) {
	poolID := c.u64("pool")
	if c.err != nil {
		return "", c.err
	}
	return "", c.engine.ClosePool(ctx, c.caller, poolID)
}

func opContribute(ctx context.Context, c *call) (string, error) {
	poolID, asset, amount, private := c.u64("pool"), c.addr("asset"), c.amount("amount"), c.boolean("private")
	if c.err != nil {
		return "", c.err
	}
	return "", c.engine.Contribute(ctx, c.caller, poolID, asset, amount, private)
}

func opRefund(ctx context.Context, c *call) (string, error) {
	poolID := c.u64("pool")
	if c.err != nil {
		return "", c.err
	}
	return "", c.engine.Refund(ctx, c.caller, poolID)
}

func opRequestEmergencyWithdraw(ctx context.Context, c *call) (string, error) {
	tokenAddr, amount := c.addr("token"), c.amount("amount")
	if c.err != nil {
		return "", c.err
	}
	return "", c.engine.RequestEmergencyWithdraw(ctx, c.caller, tokenAddr, amount)
}

func opExecuteEmergencyWithdraw(ctx context.Context, c *call) (string, error) {
	return "", c.engine.ExecuteEmergencyWithdraw(ctx, c.caller)
}

func opCheckBalance(ctx context.Context, c *call) (string, error) {
	asset, holder, want := c.addr("asset"), c.addr("holder"), c.amount("equals")
	if c.err != nil {
		return "", c.err
	}
	got, err := c.tokens.Balance(ctx, asset, holder)
	if err != nil {
		return "", err
	}
	return compare("balance", got, want)
}

func opCheckTotalRaised(ctx context.Context, c *call) (string, error) {
	id, want := c.campaign("campaign"), c.amount("equals")
	if c.err != nil {
		return "", c.err
	}
	got, err := c.engine.GetTotalRaised(ctx, id)
	if err != nil {
		return "", err
	}
	return compare("total_raised", got, want)
}

func opCheckPoolRaised(ctx context.Context, c *call) (string, error) {
	poolID, want := c.u64("pool"), c.amount("equals")
	if c.err != nil {
		return "", c.err
	}
	m, err := c.engine.GetPoolMetrics(ctx, poolID)
	if err != nil {
		return "", err
	}
	return compare("total_raised", m.TotalRaised, want)
}

func opCheckPoolState(ctx context.Context, c *call) (string, error) {
	poolID, want := c.u64("pool"), c.state("state")
	if c.err != nil {
		return "", c.err
	}
	got, err := c.engine.GetPoolState(ctx, poolID)
	if err != nil {
		return "", err
	}
	if got != want {
		return "state=" + got.String(), fmt.Errorf("%w: state is %s, want %s", ErrCheckFailed, got, want)
	}
	return "state=" + got.String(), nil
}

func compare(what string, got, want domain.Amount) (string, error) {
	result := what + "=" + got.String()
	if !got.Equal(want) {
		return result, fmt.Errorf("%w: %s is %s, want %s", ErrCheckFailed, what, got, want)
	}
	return result, nil
}

// Argument accessors. Each records the first failure in c.err.

func (c *call) fail(key string, err error) {
	if c.err == nil {
		c.err = fmt.Errorf("arg %q: %w", key, err)
	}
}

func (c *call) required(key string) string {
	v, ok := c.args[key]
	if !ok || v == "" {
		c.fail(key, errors.New("required"))
	}
	return v
}

func (c *call) addr(key string) domain.Address {
	return c.names.addr(c.args[key])
}

func (c *call) addrs(key string) []domain.Address {
	raw := strings.TrimSpace(c.args[key])
	if raw == "" {
		return nil
	}
	var out []domain.Address
	for _, label := range strings.Split(raw, ",") {
		out = append(out, c.names.addr(strings.TrimSpace(label)))
	}
	return out
}

func (c *call) amount(key string) domain.Amount {
	v, err := domain.ParseAmount(c.required(key))
	if err != nil && c.err == nil {
		c.fail(key, err)
	}
	return v
}

func (c *call) amountOr(key string, def domain.Amount) domain.Amount {
	if _, ok := c.args[key]; !ok {
		return def
	}
	return c.amount(key)
}

func (c *call) u64(key string) uint64 {
	v, err := strconv.ParseUint(c.required(key), 10, 64)
	if err != nil && c.err == nil {
		c.fail(key, err)
	}
	return v
}

func (c *call) u64Or(key string, def uint64) uint64 {
	if _, ok := c.args[key]; !ok {
		return def
	}
	return c.u64(key)
}

func (c *call) optU32(key string) *uint32 {
	if _, ok := c.args[key]; !ok {
		return nil
	}
	v, err := strconv.ParseUint(c.args[key], 10, 32)
	if err != nil {
		c.fail(key, err)
		return nil
	}
	n := uint32(v)
	return &n
}

func (c *call) boolean(key string) bool {
	raw, ok := c.args[key]
	if !ok {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.fail(key, err)
	}
	return v
}

func (c *call) state(key string) domain.PoolState {
	s, err := domain.ParsePoolState(strings.ToUpper(c.required(key)))
	if err != nil && c.err == nil {
		c.fail(key, err)
	}
	return s
}

// deadline reads an absolute deadline, or ttl seconds from the current clock.
func (c *call) deadline() uint64 {
	if _, ok := c.args["ttl"]; ok {
		return c.now + c.u64("ttl")
	}
	return c.u64("deadline")
}

func (c *call) campaign(key string) domain.CampaignID {
	label := c.required(key)
	if id, ok := c.names.campaigns[label]; ok {
		return id
	}
	id, err := domain.ParseCampaignID(label)
	if err != nil && c.err == nil {
		c.fail(key, err)
	}
	return id
}
