package solana

import (
	"context"
	"errors"

	"oracle-protocol/internal/domain"
)

// ErrAccountNotFound is returned when the cluster has no account at an address.
var ErrAccountNotFound = errors.New("account not found")

// RPCClient defines the Solana RPC HTTP calls the registry reader needs.
type RPCClient interface {
	// GetAccountInfo retrieves one account. Returns ErrAccountNotFound if absent.
	GetAccountInfo(ctx context.Context, address domain.Pubkey) (*AccountInfo, error)

	// GetProgramAccounts lists accounts owned by program that match all filters.
	GetProgramAccounts(ctx context.Context, program domain.Pubkey, filters ...MemcmpFilter) ([]KeyedAccount, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}
