package idhash

import (
	"crypto/sha256"
	"fmt"

	"crowdfund-ledger/internal/domain"
)

// ComputeCampaignID computes a deterministic 32-byte campaign id using SHA256.
// Formula: SHA256(creator|title|nonce)
// Callers that mint ids themselves may pass any 32 bytes instead.
func ComputeCampaignID(creator domain.Address, title string, nonce uint64) domain.CampaignID {
	data := fmt.Sprintf("%s|%s|%d", creator, title, nonce)
	return domain.CampaignID(sha256.Sum256([]byte(data)))
}

// AddressFromSeed derives a stable test or demo address from a human label.
// The result is a valid 32-byte base58 address; nobody holds a key for it.
func AddressFromSeed(label string) domain.Address {
	sum := sha256.Sum256([]byte("address|" + label))
	return domain.AddressFromPublicKey(sum[:])
}
