package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/storage"
)

const accountKeyPrefix = "registry:acct:"

// AccountStore implements storage.AccountStore using Redis strings.
// Create relies on SET NX and Update on SET XX, so both are atomic on the server.
type AccountStore struct {
	client *redis.Client
	now    func() time.Time
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// NewAccountStore constructs a Redis-backed account store.
func NewAccountStore(client *redis.Client) *AccountStore {
	return &AccountStore{client: client, now: time.Now}
}

func accountKey(address domain.Pubkey) string {
	return accountKeyPrefix + address.String()
}

// Create inserts a new account. Returns ErrDuplicateKey if the address is occupied.
func (s *AccountStore) Create(ctx context.Context, a *domain.Account) error {
	if a == nil || a.Address.IsZero() {
		return storage.ErrInvalidInput
	}

	record := *a
	record.CreatedAt = s.now().UnixMilli()
	record.UpdatedAt = record.CreatedAt

	ok, err := s.client.SetNX(ctx, accountKey(a.Address), storage.EncodeAccountRecord(&record), 0).Result()
	if err != nil {
		return fmt.Errorf("setnx account: %w", err)
	}
	if !ok {
		return storage.ErrDuplicateKey
	}
	return nil
}

// Get retrieves an account by address. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(ctx context.Context, address domain.Pubkey) (*domain.Account, error) {
	b, err := s.client.Get(ctx, accountKey(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return storage.DecodeAccountRecord(address, b)
}

// Update replaces the data of an existing account. Returns ErrNotFound if not exists.
//
// The record is read, rewritten and stored under WATCH so a concurrent
// writer aborts the transaction instead of losing created_at or owner.
func (s *AccountStore) Update(ctx context.Context, address domain.Pubkey, data []byte) error {
	key := accountKey(address)

	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get account: %w", err)
		}
		current, err := storage.DecodeAccountRecord(address, b)
		if err != nil {
			return err
		}
		current.Data = data
		current.UpdatedAt = s.now().UnixMilli()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetXX(ctx, key, storage.EncodeAccountRecord(current), redis.KeepTTL)
			return nil
		})
		return err
	}

	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("update account: %w", err)
		}
		return err
	}
	return fmt.Errorf("update account %s: too much contention", address)
}
