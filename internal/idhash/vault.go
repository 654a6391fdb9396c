package idhash

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"

	"crowdfund-ledger/internal/domain"
)

// vaultMarker domain-separates vault derivation from other hashes.
const vaultMarker = "CrowdfundVault"

// ErrNoOffCurveAddress is returned when no bump yields an off-curve point.
var ErrNoOffCurveAddress = errors.New("no off-curve vault address for seed")

// VaultAddress derives the address that holds donated funds for a deployment.
//
// Derivation: SHA256(seed || bump || marker), trying bump from 255 down until the
// hash is not a valid ed25519 point. An off-curve address has no private key, so
// only the engine (through the token gateway) can move funds out of it.
func VaultAddress(seed string) (domain.Address, error) {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, len(seed)+1+len(vaultMarker))
		data = append(data, seed...)
		data = append(data, bump)
		data = append(data, vaultMarker...)

		hash := sha256.Sum256(data)
		if !IsOnCurve(hash[:]) {
			return domain.AddressFromPublicKey(hash[:]), nil
		}
	}
	return "", ErrNoOffCurveAddress
}

// IsOnCurve reports whether point is a valid compressed ed25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
