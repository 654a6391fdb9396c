package domain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ErrInvalidAddress is returned when an address or identifier cannot be decoded.
var ErrInvalidAddress = errors.New("invalid address")

// Address identifies an account: a donor, a creator, the admin, an asset or the vault.
// Its text form is the base58 encoding of a 32-byte public key.
type Address string

// AddressFromPublicKey encodes a 32-byte public key as an Address.
func AddressFromPublicKey(pub []byte) Address {
	return Address(base58.Encode(pub))
}

// ParseAddress validates that s decodes to 32 bytes of base58.
func ParseAddress(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(raw))
	}
	return Address(s), nil
}

// PublicKey returns the raw 32 bytes behind the address.
func (a Address) PublicKey() ([]byte, error) {
	raw, err := base58.Decode(string(a))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(raw))
	}
	return raw, nil
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ""
}

// String returns the text form.
func (a Address) String() string {
	return string(a)
}

// CampaignID is the fixed-width 32-byte campaign identifier.
type CampaignID [32]byte

// ParseCampaignID accepts base58 or 64-character hex.
func ParseCampaignID(s string) (CampaignID, error) {
	var id CampaignID
	s = strings.TrimSpace(s)

	if len(s) == 64 {
		if raw, err := hex.DecodeString(s); err == nil {
			copy(id[:], raw)
			return id, nil
		}
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("%w: campaign id %q", ErrInvalidAddress, s)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("%w: campaign id decoded length %d", ErrInvalidAddress, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// String returns the base58 form.
func (id CampaignID) String() string {
	return base58.Encode(id[:])
}

// Hex returns the lowercase hex form.
func (id CampaignID) Hex() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether every byte is zero.
func (id CampaignID) IsZero() bool {
	return id == CampaignID{}
}

// MarshalText implements encoding.TextMarshaler.
func (id CampaignID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *CampaignID) UnmarshalText(text []byte) error {
	parsed, err := ParseCampaignID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
