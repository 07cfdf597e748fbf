package registry

import "oracle-protocol/internal/domain"

// Authorize reports whether any signer equals the stored owner.
// It has no side effects and a zero owner never authorizes.
func Authorize(storedOwner domain.Pubkey, signers []domain.Pubkey) bool {
	if storedOwner.IsZero() {
		return false
	}
	for _, s := range signers {
		if s == storedOwner {
			return true
		}
	}
	return false
}

// Caller identifies who is invoking a mutating operation.
type Caller struct {
	// Authority is the user account of the instruction. It becomes the
	// owner of a newly created provider.
	Authority domain.Pubkey

	// Signers are the keys whose signatures were verified.
	Signers []domain.Pubkey
}

// SignedBy returns a Caller whose authority is also its only signer.
func SignedBy(key domain.Pubkey) Caller {
	return Caller{Authority: key, Signers: []domain.Pubkey{key}}
}
