package storage

import (
	"encoding/binary"
	"fmt"

	"oracle-protocol/internal/domain"
)

// recordHeaderSize is owner(32) + created_at(8) + updated_at(8).
const recordHeaderSize = domain.PubkeyLength + 8 + 8

// EncodeAccountRecord packs an account for key-value backends.
// The address is the key and is not repeated in the value.
func EncodeAccountRecord(a *domain.Account) []byte {
	buf := make([]byte, recordHeaderSize+len(a.Data))
	copy(buf, a.Owner[:])
	binary.BigEndian.PutUint64(buf[32:], uint64(a.CreatedAt))
	binary.BigEndian.PutUint64(buf[40:], uint64(a.UpdatedAt))
	copy(buf[recordHeaderSize:], a.Data)
	return buf
}

// DecodeAccountRecord reverses EncodeAccountRecord. The returned account owns its data.
func DecodeAccountRecord(address domain.Pubkey, b []byte) (*domain.Account, error) {
	if len(b) < recordHeaderSize {
		return nil, fmt.Errorf("account record %s: %d bytes, need at least %d", address, len(b), recordHeaderSize)
	}
	a := &domain.Account{Address: address}
	copy(a.Owner[:], b[:32])
	a.CreatedAt = int64(binary.BigEndian.Uint64(b[32:]))
	a.UpdatedAt = int64(binary.BigEndian.Uint64(b[40:]))
	a.Data = append([]byte(nil), b[recordHeaderSize:]...)
	return a, nil
}
