package replay

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"sync"

	"crowdfund-ledger/internal/auth"
	"crowdfund-ledger/internal/domain"
)

// keyring holds one deterministic ed25519 key per scenario actor and the
// next nonce each actor will sign with.
type keyring struct {
	mu     sync.Mutex
	salt   string
	keys   map[domain.Address]ed25519.PrivateKey
	nonces map[domain.Address]uint64
}

func newKeyring(salt string) *keyring {
	return &keyring{
		salt:   salt,
		keys:   make(map[domain.Address]ed25519.PrivateKey),
		nonces: make(map[domain.Address]uint64),
	}
}

// add derives the key for label and returns its address.
func (k *keyring) add(label string) domain.Address {
	seed := sha256.Sum256([]byte("replay-key:" + k.salt + ":" + label))
	priv := ed25519.NewKeyFromSeed(seed[:])
	addr := domain.AddressFromPublicKey(priv.Public().(ed25519.PublicKey))

	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[addr] = priv
	return addr
}

// sign returns a caller for addr that proves control of its key for action.
// Addresses without a key are returned unsigned.
func (k *keyring) sign(addr domain.Address, action auth.Action) auth.Caller {
	k.mu.Lock()
	priv, ok := k.keys[addr]
	if ok {
		k.nonces[addr]++
	}
	nonce := k.nonces[addr]
	k.mu.Unlock()

	if !ok {
		return auth.As(addr)
	}
	return auth.Sign(priv, action, nonce)
}

// signer plays the scenario actors' wallets: it signs each authorization
// request with the caller's key, then hands it to verify.
type signer struct {
	keys   *keyring
	verify auth.Authorizer
}

var _ auth.Authorizer = (*signer)(nil)

// Authorize implements auth.Authorizer.
func (s *signer) Authorize(ctx context.Context, caller auth.Caller, required domain.Address, action auth.Action) error {
	if len(caller.Proof) == 0 {
		caller = s.keys.sign(caller.Address, action)
	}
	return s.verify.Authorize(ctx, caller, required, action)
}
