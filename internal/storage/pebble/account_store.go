// Package pebble stores registry accounts in an embedded PebbleDB.
package pebble

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/storage"
)

// accountPrefix namespaces account keys so other record kinds can share the database.
var accountPrefix = []byte("acct/")

// AccountStore implements storage.AccountStore on PebbleDB.
//
// Pebble has no conditional put, so a writer mutex serializes the
// read-check-write of Create and Update. Reads go straight to the DB.
type AccountStore struct {
	db  *pebble.DB
	mu  sync.Mutex
	now func() time.Time
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// Open opens (creating if missing) a Pebble database at path.
func Open(path string) (*AccountStore, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create pebble dir %s: %w", path, err)
	}
	return OpenWithOptions(path, defaultOptions())
}

// OpenWithOptions opens a database with caller-provided options (tests use an in-memory FS).
func OpenWithOptions(path string, opts *pebble.Options) (*AccountStore, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &AccountStore{db: db, now: time.Now}, nil
}

// defaultOptions tunes for small values and point lookups by address.
func defaultOptions() *pebble.Options {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(32 << 20),
		MemTableSize: 16 << 20,
		Levels:       make([]pebble.LevelOptions, 7),
	}
	for i := range opts.Levels {
		opts.Levels[i] = pebble.LevelOptions{
			BlockSize:    4 << 10,
			FilterPolicy: bloom.FilterPolicy(10),
			FilterType:   pebble.TableFilter,
		}
	}
	return opts
}

// Close flushes and closes the database.
func (s *AccountStore) Close() error {
	return s.db.Close()
}

func accountKey(address domain.Pubkey) []byte {
	key := make([]byte, 0, len(accountPrefix)+domain.PubkeyLength)
	key = append(key, accountPrefix...)
	return append(key, address[:]...)
}

// Create inserts a new account. Returns ErrDuplicateKey if the address is occupied.
func (s *AccountStore) Create(ctx context.Context, a *domain.Account) error {
	if a == nil || a.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := accountKey(a.Address)

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.has(key)
	if err != nil {
		return err
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	record := *a
	record.CreatedAt = s.now().UnixMilli()
	record.UpdatedAt = record.CreatedAt
	if err := s.db.Set(key, storage.EncodeAccountRecord(&record), pebble.Sync); err != nil {
		return fmt.Errorf("set account: %w", err)
	}
	return nil
}

// Get retrieves an account by address. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(ctx context.Context, address domain.Pubkey) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, closer, err := s.db.Get(accountKey(address))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	defer closer.Close()

	// DecodeAccountRecord copies, so the value may be released after this returns.
	return storage.DecodeAccountRecord(address, value)
}

// Update replaces the data of an existing account. Returns ErrNotFound if not exists.
func (s *AccountStore) Update(ctx context.Context, address domain.Pubkey, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := accountKey(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("get account: %w", err)
	}
	current, err := storage.DecodeAccountRecord(address, value)
	closer.Close()
	if err != nil {
		return err
	}

	current.Data = data
	current.UpdatedAt = s.now().UnixMilli()
	if err := s.db.Set(key, storage.EncodeAccountRecord(current), pebble.Sync); err != nil {
		return fmt.Errorf("set account: %w", err)
	}
	return nil
}

func (s *AccountStore) has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get account: %w", err)
	}
	closer.Close()
	return true, nil
}
