package memory

import (
	"context"
	"sync"
	"time"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
type AccountStore struct {
	mu   sync.RWMutex
	data map[domain.Pubkey]*domain.Account // keyed by address
	now  func() time.Time
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data: make(map[domain.Pubkey]*domain.Account),
		now:  time.Now,
	}
}

// Create inserts a new account. Returns ErrDuplicateKey if the address is occupied.
func (s *AccountStore) Create(_ context.Context, a *domain.Account) error {
	if a == nil || a.Address.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.Address]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	acct := a.Clone()
	ts := s.now().UnixMilli()
	acct.CreatedAt = ts
	acct.UpdatedAt = ts
	s.data[a.Address] = acct
	return nil
}

// Get retrieves an account by address. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(_ context.Context, address domain.Pubkey) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return a.Clone(), nil
}

// Update replaces the data of an existing account. Returns ErrNotFound if not exists.
func (s *AccountStore) Update(_ context.Context, address domain.Pubkey, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[address]
	if !exists {
		return storage.ErrNotFound
	}

	// Swap in a fresh record so readers holding the old clone are unaffected
	next := a.Clone()
	next.Data = append([]byte(nil), data...)
	next.UpdatedAt = s.now().UnixMilli()
	s.data[address] = next
	return nil
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Verify interface compliance at compile time.
var _ storage.AccountStore = (*AccountStore)(nil)
