package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/storage"
)

// AccountStore implements storage.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *Pool
	now  func() time.Time
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool, now: time.Now}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// Create inserts a new account. Returns ErrDuplicateKey if the address is occupied.
// The primary key on address makes the insert the uniqueness guard.
func (s *AccountStore) Create(ctx context.Context, a *domain.Account) error {
	if a == nil || a.Address.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO accounts (address, owner, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`

	ts := s.now().UnixMilli()
	_, err := s.pool.Exec(ctx, query,
		a.Address.String(),
		a.Owner.String(),
		a.Data,
		ts,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Get retrieves an account by address. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(ctx context.Context, address domain.Pubkey) (*domain.Account, error) {
	query := `
		SELECT address, owner, data, created_at, updated_at
		FROM accounts
		WHERE address = $1
	`

	row := s.pool.QueryRow(ctx, query, address.String())
	a, err := scanAccount(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// Update replaces the data of an existing account. Returns ErrNotFound if not exists.
func (s *AccountStore) Update(ctx context.Context, address domain.Pubkey, data []byte) error {
	query := `
		UPDATE accounts
		SET data = $2, updated_at = $3
		WHERE address = $1
	`

	tag, err := s.pool.Exec(ctx, query, address.String(), data, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanAccount scans a single row into Account.
func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a       domain.Account
		address string
		owner   string
	)

	err := row.Scan(
		&address,
		&owner,
		&a.Data,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if a.Address, err = domain.ParsePubkey(address); err != nil {
		return nil, fmt.Errorf("scan address: %w", err)
	}
	if a.Owner, err = domain.ParsePubkey(owner); err != nil {
		return nil, fmt.Errorf("scan owner: %w", err)
	}
	return &a, nil
}
