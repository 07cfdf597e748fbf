// Package cache provides a read-through LRU in front of an AccountStore.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/observability"
	"oracle-protocol/internal/storage"
)

// DefaultSize is used when a non-positive size is requested.
const DefaultSize = 4096

// loadTimeout bounds a shared backend load. The load outlives any single
// caller's context, so it needs its own deadline.
const loadTimeout = 30 * time.Second

// AccountStore caches decoded accounts by address.
//
// The cache is only coherent when this process is the sole writer of the
// underlying store. Writes go through to the backend first and then drop
// the cached entry; concurrent misses for one address share a single load.
type AccountStore struct {
	next    storage.AccountStore
	entries *lru.Cache[domain.Pubkey, *domain.Account]
	loads   singleflight.Group
	metrics *observability.Metrics

	// epoch advances on every write. A load that raced a write is returned
	// to its caller but not cached.
	epoch atomic.Uint64
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// New wraps next with an LRU of the given size.
func New(next storage.AccountStore, size int, metrics *observability.Metrics) (*AccountStore, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[domain.Pubkey, *domain.Account](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &AccountStore{next: next, entries: entries, metrics: metrics}, nil
}

// Create writes through and invalidates the address.
func (c *AccountStore) Create(ctx context.Context, a *domain.Account) error {
	c.epoch.Add(1)
	err := c.next.Create(ctx, a)
	if a != nil {
		c.entries.Remove(a.Address)
	}
	return err
}

// Get returns a copy of the cached account, loading it on a miss.
// Not-found results are not cached so a later Create is visible immediately.
// Concurrent misses share one load that is detached from every caller's
// cancellation; each caller still returns as soon as its own ctx is done.
func (c *AccountStore) Get(ctx context.Context, address domain.Pubkey) (*domain.Account, error) {
	if a, ok := c.entries.Get(address); ok {
		c.metrics.RecordCacheLookup(true)
		return a.Clone(), nil
	}
	c.metrics.RecordCacheLookup(false)

	ch := c.loads.DoChan(string(address[:]), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		start := c.epoch.Load()
		a, err := c.next.Get(loadCtx, address)
		if err != nil {
			return nil, err
		}
		if c.epoch.Load() == start {
			c.entries.Add(address, a)
		}
		return a, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Account).Clone(), nil
	}
}

// Update writes through and invalidates the address.
func (c *AccountStore) Update(ctx context.Context, address domain.Pubkey, data []byte) error {
	c.epoch.Add(1)
	err := c.next.Update(ctx, address, data)
	c.entries.Remove(address)
	return err
}

// Len returns the number of cached accounts.
func (c *AccountStore) Len() int {
	return c.entries.Len()
}
