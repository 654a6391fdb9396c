package auth

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"filippo.io/edwards25519"

	"crowdfund-ledger/internal/domain"
)

// Ed25519 verifies that the caller signed the action digest with the key behind
// its address, and that the nonce was never used before.
//
// Nonces are tracked in process memory only: a restarted process accepts any
// nonce again, so callers must not rely on this for replay protection across
// restarts. A nonce is consumed as soon as its signature verifies, even when
// the operation is rejected or rolled back afterwards; the caller signs the
// retry with a fresh nonce.
type Ed25519 struct {
	mu        sync.Mutex
	lastNonce map[domain.Address]uint64
}

var _ Authorizer = (*Ed25519)(nil)

// NewEd25519 creates a signature-checking authorizer.
func NewEd25519() *Ed25519 {
	return &Ed25519{lastNonce: make(map[domain.Address]uint64)}
}

// Authorize implements Authorizer.
func (a *Ed25519) Authorize(_ context.Context, caller Caller, required domain.Address, action Action) error {
	if caller.Address.IsZero() || caller.Address != required {
		return ErrWrongCaller
	}

	pub, err := caller.Address.PublicKey()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadProof, err)
	}
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return fmt.Errorf("%w: address is not a curve point", ErrBadProof)
	}
	if len(caller.Proof) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature length %d", ErrBadProof, len(caller.Proof))
	}

	digest := action.Digest(caller.Nonce)
	if !ed25519.Verify(ed25519.PublicKey(pub), digest[:], caller.Proof) {
		return ErrBadProof
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if last, seen := a.lastNonce[caller.Address]; seen && caller.Nonce <= last {
		return fmt.Errorf("%w: %d <= %d", ErrReplayedNonce, caller.Nonce, last)
	}
	a.lastNonce[caller.Address] = caller.Nonce
	return nil
}

// Sign builds a caller that proves control of priv for action.
func Sign(priv ed25519.PrivateKey, action Action, nonce uint64) Caller {
	digest := action.Digest(nonce)
	pub := priv.Public().(ed25519.PublicKey)
	return Caller{
		Address: domain.AddressFromPublicKey(pub),
		Nonce:   nonce,
		Proof:   ed25519.Sign(priv, digest[:]),
	}
}
