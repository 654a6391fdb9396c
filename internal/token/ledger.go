package token

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"crowdfund-ledger/internal/domain"
)

// Ledger is an in-memory Gateway. Assets come into existence on first Mint.
type Ledger struct {
	mu       sync.Mutex
	balances map[domain.Address]map[domain.Address]domain.Amount // asset -> holder -> balance
}

var (
	_ Gateway = (*Ledger)(nil)
	_ Minter  = (*Ledger)(nil)
)

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[domain.Address]map[domain.Address]domain.Amount),
	}
}

// Mint credits amount of asset to addr.
func (l *Ledger) Mint(_ context.Context, asset, to domain.Address, amount domain.Amount) error {
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	holders, ok := l.balances[asset]
	if !ok {
		holders = make(map[domain.Address]domain.Amount)
		l.balances[asset] = holders
	}

	next, err := holders[to].Add(amount)
	if err != nil {
		return fmt.Errorf("mint %s: %w", asset, err)
	}
	holders[to] = next
	return nil
}

// Transfer moves amount of asset from one account to another.
func (l *Ledger) Transfer(_ context.Context, asset, from, to domain.Address, amount domain.Amount) error {
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	holders, ok := l.balances[asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}

	src := holders[from]
	if src.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from, src, amount)
	}

	remaining, err := src.Sub(amount)
	if err != nil {
		return err
	}
	credited, err := holders[to].Add(amount)
	if err != nil {
		return err
	}

	holders[from] = remaining
	holders[to] = credited
	return nil
}

// Balance returns the amount of asset held by addr. Unknown assets hold nothing.
func (l *Ledger) Balance(_ context.Context, asset, addr domain.Address) (domain.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.balances[asset][addr], nil
}

// Holding is one non-zero balance in a snapshot.
type Holding struct {
	Asset   domain.Address
	Holder  domain.Address
	Balance domain.Amount
}

// Snapshot returns every non-zero balance ordered by asset then holder.
func (l *Ledger) Snapshot() []Holding {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Holding
	for asset, holders := range l.balances {
		for holder, bal := range holders {
			if !bal.IsZero() {
				out = append(out, Holding{Asset: asset, Holder: holder, Balance: bal})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Asset != out[j].Asset {
			return out[i].Asset < out[j].Asset
		}
		return out[i].Holder < out[j].Holder
	})
	return out
}
