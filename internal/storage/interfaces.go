package storage

import (
	"context"

	"oracle-protocol/internal/domain"
)

// AccountStore provides access to raw accounts keyed by address.
// Create is the only way an address becomes occupied and is the registry's
// sole concurrency-control primitive: among concurrent creators of one address
// exactly one succeeds.
type AccountStore interface {
	// Create inserts a new account. Returns ErrDuplicateKey if the address is occupied.
	Create(ctx context.Context, a *domain.Account) error

	// Get retrieves an account by address. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address domain.Pubkey) (*domain.Account, error)

	// Update replaces the data of an existing account in a single write.
	// The owning program never changes. Returns ErrNotFound if not exists.
	Update(ctx context.Context, address domain.Pubkey, data []byte) error
}

// HistoryStore provides access to oracle_revisions storage (append-only).
type HistoryStore interface {
	// Append adds a revision.
	Append(ctx context.Context, r *domain.OracleRevision) error

	// ListByOracle retrieves revisions of an oracle, newest first.
	// limit <= 0 returns all revisions.
	ListByOracle(ctx context.Context, oracle domain.Pubkey, limit int) ([]*domain.OracleRevision, error)
}
