// Package pda derives program addresses: deterministic account addresses
// computed from seeds and a program ID that are guaranteed to lie off the
// ed25519 curve, so no private key can ever sign for them.
package pda

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"oracle-protocol/internal/domain"
)

const (
	// MaxSeedLength is the largest single seed, in bytes.
	MaxSeedLength = 32

	// MaxSeeds is the largest number of seeds, including the bump.
	MaxSeeds = 16

	// maxBumpAttempts covers bump values 255..1. Bump 0 is never tried,
	// matching the cluster runtime's search.
	maxBumpAttempts = 255

	pdaMarker = "ProgramDerivedAddress"
)

var (
	// ErrMaxSeedLength is returned when a seed is longer than MaxSeedLength.
	ErrMaxSeedLength = errors.New("seed exceeds maximum length")

	// ErrMaxSeeds is returned when too many seeds are supplied.
	ErrMaxSeeds = errors.New("too many seeds")

	// ErrOnCurve is returned by CreateProgramAddress when the candidate is a valid curve point.
	ErrOnCurve = errors.New("derived address is on the ed25519 curve")

	// ErrDerivationExhausted is returned when no bump yields an off-curve address.
	ErrDerivationExhausted = errors.New("no viable bump seed found")
)

// CreateProgramAddress hashes seeds and programID into an address.
// The bump, if any, must already be the last seed.
// Hash: SHA256(seed_0 || ... || seed_n || programID || "ProgramDerivedAddress")
func CreateProgramAddress(seeds [][]byte, programID domain.Pubkey) (domain.Pubkey, error) {
	var addr domain.Pubkey
	if err := checkSeeds(seeds); err != nil {
		return addr, err
	}

	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))
	copy(addr[:], h.Sum(nil))

	if onCurve(addr[:]) {
		return domain.Pubkey{}, ErrOnCurve
	}
	return addr, nil
}

// FindProgramAddress searches bumps from 255 down to 1 and returns the first
// off-curve address with the bump that produced it (the canonical bump).
func FindProgramAddress(seeds [][]byte, programID domain.Pubkey) (domain.Pubkey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return domain.Pubkey{}, 0, fmt.Errorf("%w: %d (bump needs a slot, max %d)", ErrMaxSeeds, len(seeds), MaxSeeds-1)
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	bumpSeed := []byte{0}

	for i := 0; i < maxBumpAttempts; i++ {
		bump := uint8(255 - i)
		bumpSeed[0] = bump
		withBump[len(seeds)] = bumpSeed

		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, bump, nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return domain.Pubkey{}, 0, err
		}
	}

	return domain.Pubkey{}, 0, ErrDerivationExhausted
}

// VerifyProgramAddress reports whether addr is the address derived from seeds
// and bump under programID. Used to re-validate stored accounts without a search.
func VerifyProgramAddress(addr domain.Pubkey, seeds [][]byte, bump uint8, programID domain.Pubkey) bool {
	withBump := make([][]byte, 0, len(seeds)+1)
	withBump = append(withBump, seeds...)
	withBump = append(withBump, []byte{bump})

	derived, err := CreateProgramAddress(withBump, programID)
	if err != nil {
		return false
	}
	return derived == addr
}

// onCurve is the curve check used by CreateProgramAddress.
var onCurve = IsOnCurve

// SetCurveCheck replaces the curve check and returns a function restoring the
// previous one. It lets tests in other packages force the exhausted path; it
// is not safe to call while derivations run concurrently.
func SetCurveCheck(f func(point []byte) bool) (restore func()) {
	prev := onCurve
	onCurve = f
	return func() { onCurve = prev }
}

// IsOnCurve returns true if the 32-byte value decodes to a valid edwards25519
// point, i.e. could be an ed25519 public key.
func IsOnCurve(point []byte) bool {
	if len(point) != domain.PubkeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// NameSeed returns the seed form of a name: its first MaxSeedLength bytes.
func NameSeed(name string) []byte {
	b := []byte(name)
	if len(b) > MaxSeedLength {
		return b[:MaxSeedLength]
	}
	return b
}

func checkSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return fmt.Errorf("%w: %d (max %d)", ErrMaxSeeds, len(seeds), MaxSeeds)
	}
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return fmt.Errorf("%w: seed %d is %d bytes (max %d)", ErrMaxSeedLength, i, len(seed), MaxSeedLength)
		}
	}
	return nil
}
