package memory

import (
	"context"
	"sync"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/storage"
)

// HistoryStore is an in-memory implementation of storage.HistoryStore.
type HistoryStore struct {
	mu   sync.RWMutex
	data map[domain.Pubkey][]*domain.OracleRevision // keyed by oracle, append order
}

// NewHistoryStore creates a new in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		data: make(map[domain.Pubkey][]*domain.OracleRevision),
	}
}

// Append adds a revision.
func (s *HistoryStore) Append(_ context.Context, r *domain.OracleRevision) error {
	if r == nil || r.Oracle.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[r.Oracle] = append(s.data[r.Oracle], copyRevision(r))
	return nil
}

// ListByOracle retrieves revisions of an oracle, newest first.
func (s *HistoryStore) ListByOracle(_ context.Context, oracle domain.Pubkey, limit int) ([]*domain.OracleRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revs := s.data[oracle]
	n := len(revs)
	if limit > 0 && limit < n {
		n = limit
	}

	result := make([]*domain.OracleRevision, 0, n)
	for i := len(revs) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, copyRevision(revs[i]))
	}
	return result, nil
}

func copyRevision(r *domain.OracleRevision) *domain.OracleRevision {
	c := *r
	c.Attributes = domain.CloneAttributes(r.Attributes)
	return &c
}

// Verify interface compliance at compile time.
var _ storage.HistoryStore = (*HistoryStore)(nil)
