// Package token provides the asset-transfer primitive consumed by the ledger engine.
package token

import (
	"context"
	"errors"

	"crowdfund-ledger/internal/domain"
)

// Gateway errors.
var (
	// ErrInsufficientBalance is returned when the source holds less than the amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUnknownAsset is returned when the asset is not known to the gateway.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrInvalidAmount is returned for negative transfer amounts.
	ErrInvalidAmount = errors.New("invalid transfer amount")
)

// Gateway moves amounts of an asset between accounts.
// Calls are synchronous: when Transfer returns nil the transfer happened.
type Gateway interface {
	// Transfer moves amount of asset from one account to another.
	Transfer(ctx context.Context, asset, from, to domain.Address, amount domain.Amount) error

	// Balance returns the amount of asset held by addr.
	Balance(ctx context.Context, asset, addr domain.Address) (domain.Amount, error)
}

// Minter credits new units of an asset. Scenario replay funds its accounts
// through it.
type Minter interface {
	Mint(ctx context.Context, asset, to domain.Address, amount domain.Amount) error
}
