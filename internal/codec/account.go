package codec

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"oracle-protocol/internal/domain"
)

// DiscriminatorLength is the size of the record kind tag.
const DiscriminatorLength = 8

// maxDecodeAttributes bounds decoded attribute vectors. Wider than the write-side
// limit so records from other deployments still decode.
const maxDecodeAttributes = 256

// Discriminator is the 8-byte record/instruction tag.
type Discriminator [DiscriminatorLength]byte

// Record kind tags: SHA256("account:<Kind>")[:8].
var (
	ProviderDiscriminator = accountDiscriminator("Provider")
	OracleDiscriminator   = accountDiscriminator("Oracle")
)

func accountDiscriminator(kind string) Discriminator {
	return hashDiscriminator("account:" + kind)
}

func hashDiscriminator(preimage string) Discriminator {
	var d Discriminator
	sum := sha256.Sum256([]byte(preimage))
	copy(d[:], sum[:DiscriminatorLength])
	return d
}

// HasDiscriminator reports whether data starts with d.
func HasDiscriminator(data []byte, d Discriminator) bool {
	return len(data) >= DiscriminatorLength && bytes.Equal(data[:DiscriminatorLength], d[:])
}

// providerRecord is the borsh body of a provider account; field order is the layout.
type providerRecord struct {
	Name     string
	Owner    domain.Pubkey
	Capacity uint32
	Bump     uint8
}

// oracleRecord is the borsh body of an oracle account. Provider comes first so
// cluster queries can filter on it at offset 8.
type oracleRecord struct {
	Provider   domain.Pubkey
	Name       string
	Attributes []domain.Attribute
	Bump       uint8
}

// EncodeProvider serializes a provider record.
// Layout: disc(8) | name(4+n) | owner(32) | capacity(u32) | bump(u8)
func EncodeProvider(p *domain.Provider) []byte {
	return encodeTagged(ProviderDiscriminator, &providerRecord{
		Name:     p.Name,
		Owner:    p.Owner,
		Capacity: p.Capacity,
		Bump:     p.Bump,
	}, 4+len(p.Name)+domain.PubkeyLength+4+1)
}

// DecodeProvider parses a provider record. Trailing bytes are ignored.
// The returned Provider has no Address; callers set it from the account key.
func DecodeProvider(data []byte) (*domain.Provider, error) {
	if !HasDiscriminator(data, ProviderDiscriminator) {
		return nil, fmt.Errorf("%w: not a provider record", ErrDiscriminator)
	}
	r := NewReader(data[DiscriminatorLength:])

	var p domain.Provider
	var err error
	if p.Name, err = r.ReadString("name"); err != nil {
		return nil, fmt.Errorf("decode provider: %w", err)
	}
	if p.Owner, err = r.ReadPubkey("owner"); err != nil {
		return nil, fmt.Errorf("decode provider: %w", err)
	}
	if p.Capacity, err = r.ReadU32("capacity"); err != nil {
		return nil, fmt.Errorf("decode provider: %w", err)
	}
	if p.Bump, err = r.ReadU8("bump"); err != nil {
		return nil, fmt.Errorf("decode provider: %w", err)
	}
	return &p, nil
}

// EncodeOracle serializes an oracle record.
// Layout: disc(8) | provider(32) | name(4+n) | attributes(4 + n*(4+k+4+v)) | bump(u8)
func EncodeOracle(o *domain.Oracle) []byte {
	size := domain.PubkeyLength + 4 + len(o.Name) + 4 + 1
	for _, a := range o.Attributes {
		size += 8 + len(a.Name) + len(a.Value)
	}
	return encodeTagged(OracleDiscriminator, &oracleRecord{
		Provider:   o.Provider,
		Name:       o.Name,
		Attributes: o.Attributes,
		Bump:       o.Bump,
	}, size)
}

// DecodeOracle parses an oracle record. Trailing bytes are ignored.
func DecodeOracle(data []byte) (*domain.Oracle, error) {
	if !HasDiscriminator(data, OracleDiscriminator) {
		return nil, fmt.Errorf("%w: not an oracle record", ErrDiscriminator)
	}
	r := NewReader(data[DiscriminatorLength:])

	var o domain.Oracle
	var err error
	if o.Provider, err = r.ReadPubkey("provider"); err != nil {
		return nil, fmt.Errorf("decode oracle: %w", err)
	}
	if o.Name, err = r.ReadString("name"); err != nil {
		return nil, fmt.Errorf("decode oracle: %w", err)
	}
	if o.Attributes, err = r.ReadAttributes("attributes", maxDecodeAttributes); err != nil {
		return nil, fmt.Errorf("decode oracle: %w", err)
	}
	if o.Bump, err = r.ReadU8("bump"); err != nil {
		return nil, fmt.Errorf("decode oracle: %w", err)
	}
	return &o, nil
}
