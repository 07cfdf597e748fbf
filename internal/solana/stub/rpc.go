// Package stub provides in-memory cluster clients for tests.
package stub

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/solana"
)

// RPCClient implements solana.RPCClient over an in-memory account map.
type RPCClient struct {
	mu       sync.RWMutex
	Accounts map[domain.Pubkey]solana.AccountInfo
	Slot     int64
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts: make(map[domain.Pubkey]solana.AccountInfo),
	}
}

// GetAccountInfo returns the stored account or solana.ErrAccountNotFound.
func (c *RPCClient) GetAccountInfo(_ context.Context, address domain.Pubkey) (*solana.AccountInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.Accounts[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", solana.ErrAccountNotFound, address)
	}
	info.Data = append([]byte(nil), info.Data...)
	info.Slot = c.Slot
	return &info, nil
}

// GetProgramAccounts returns the accounts owned by program that match every
// filter, ordered by address.
func (c *RPCClient) GetProgramAccounts(_ context.Context, program domain.Pubkey, filters ...solana.MemcmpFilter) ([]solana.KeyedAccount, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []solana.KeyedAccount
	for address, info := range c.Accounts {
		if info.Owner != program || !matches(info.Data, filters) {
			continue
		}
		info.Data = append([]byte(nil), info.Data...)
		info.Slot = c.Slot
		out = append(out, solana.KeyedAccount{Address: address, Account: info})
	}

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out, nil
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Slot, nil
}

// SetAccount adds or replaces an account in the stub store.
func (c *RPCClient) SetAccount(address, owner domain.Pubkey, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[address] = solana.AccountInfo{Owner: owner, Data: append([]byte(nil), data...)}
}

func matches(data []byte, filters []solana.MemcmpFilter) bool {
	for _, f := range filters {
		end := f.Offset + len(f.Bytes)
		if f.Offset < 0 || end > len(data) || !bytes.Equal(data[f.Offset:end], f.Bytes) {
			return false
		}
	}
	return true
}
