package solana

import (
	"encoding/base64"
	"fmt"

	"oracle-protocol/internal/domain"
)

// AccountInfo is a cluster account as returned by getAccountInfo.
type AccountInfo struct {
	Lamports   uint64
	Owner      domain.Pubkey // owning program
	Data       []byte        // decoded from base64
	Executable bool
	RentEpoch  uint64
	Slot       int64 // context slot of the response
}

// KeyedAccount pairs an account with its address (getProgramAccounts).
type KeyedAccount struct {
	Address domain.Pubkey
	Account AccountInfo
}

// MemcmpFilter matches accounts whose data has Bytes at Offset.
type MemcmpFilter struct {
	Offset int
	Bytes  []byte
}

// accountValue is the wire form of an account in RPC results and notifications.
type accountValue struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [base64_data, encoding]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

type rpcContext struct {
	Slot int64 `json:"slot"`
}

func (v *accountValue) decode(slot int64) (*AccountInfo, error) {
	owner, err := domain.ParsePubkey(v.Owner)
	if err != nil {
		return nil, fmt.Errorf("account owner: %w", err)
	}

	info := &AccountInfo{
		Lamports:   v.Lamports,
		Owner:      owner,
		Executable: v.Executable,
		RentEpoch:  v.RentEpoch,
		Slot:       slot,
	}

	if len(v.Data) >= 1 {
		if len(v.Data) >= 2 && v.Data[1] != "base64" {
			return nil, fmt.Errorf("account data encoding %q, want base64", v.Data[1])
		}
		info.Data, err = base64.StdEncoding.DecodeString(v.Data[0])
		if err != nil {
			return nil, fmt.Errorf("decode account data: %w", err)
		}
	}
	return info, nil
}
