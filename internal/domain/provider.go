package domain

// Provider limits.
const (
	// MaxNameLength bounds provider and oracle names; names double as derivation seeds.
	MaxNameLength = 32

	// MaxCapacity is the largest capacity a provider may declare at creation.
	MaxCapacity = 10
)

// Provider is a named identity account that administers oracles.
type Provider struct {
	Address  Pubkey // derived from [Name] under the provider program
	Name     string // unique, 1..MaxNameLength bytes
	Owner    Pubkey // creating signer, immutable
	Capacity uint32 // declared at creation, stored metadata
	Bump     uint8  // derivation nonce
}
