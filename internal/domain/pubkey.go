package domain

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeyLength is the size of an account address or ed25519 public key.
const PubkeyLength = 32

// Pubkey is a 32-byte account address. Rendered as base58 (Bitcoin alphabet).
type Pubkey [PubkeyLength]byte

// SystemProgramID is the native system program address (all zero bytes).
var SystemProgramID = Pubkey{}

// ParsePubkey decodes a base58 address.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	decoded, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode base58 pubkey %q: %w", s, err)
	}
	if len(decoded) != PubkeyLength {
		return pk, fmt.Errorf("pubkey %q: expected %d bytes, got %d", s, PubkeyLength, len(decoded))
	}
	copy(pk[:], decoded)
	return pk, nil
}

// MustParsePubkey is ParsePubkey for compile-time constants. Panics on invalid input.
func MustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PubkeyFromBytes copies b into a Pubkey. b must be exactly 32 bytes.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeyLength {
		return pk, fmt.Errorf("pubkey: expected %d bytes, got %d", PubkeyLength, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// String returns the base58 form.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// Bytes returns a copy of the key bytes.
func (p Pubkey) Bytes() []byte {
	b := make([]byte, PubkeyLength)
	copy(b, p[:])
	return b
}

// IsZero reports whether p is the all-zero key.
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// Equal reports whether p and other are the same key.
func (p Pubkey) Equal(other Pubkey) bool {
	return bytes.Equal(p[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	pk, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}
