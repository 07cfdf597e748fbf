// Package codec encodes provider and oracle records and program instructions
// in the Anchor account layout: an 8-byte discriminator followed by
// borsh-serialized fields (little-endian integers, u32 length-prefixed strings
// and vectors).
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"oracle-protocol/internal/domain"
)

var (
	// ErrShortBuffer is returned when data ends before a field is complete.
	ErrShortBuffer = errors.New("unexpected end of data")

	// ErrDiscriminator is returned when data does not carry the expected discriminator.
	ErrDiscriminator = errors.New("discriminator mismatch")

	// ErrLengthLimit is returned when a length prefix exceeds the decoder's bound.
	ErrLengthLimit = errors.New("length prefix exceeds limit")
)

// maxDecodeString bounds any decoded string; protects against hostile length prefixes.
const maxDecodeString = 1 << 16

// Writer appends borsh-encoded values to a buffer.
// The first encoder error is kept and reported by Err.
type Writer struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

// NewWriter creates a writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	w := &Writer{}
	w.buf.Grow(capacity)
	w.enc = bin.NewBorshEncoder(&w.buf)
	return w
}

// Bytes returns the encoded data.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// Err returns the first error hit while encoding.
func (w *Writer) Err() error { return w.err }

func (w *Writer) keep(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// Encode writes v field by field in declaration order.
func (w *Writer) Encode(v any) {
	w.keep(w.enc.Encode(v))
}

// WriteRaw writes b without a length prefix.
func (w *Writer) WriteRaw(b []byte) { w.keep(w.enc.WriteBytes(b, false)) }

// WriteU8 writes a single byte.
func (w *Writer) WriteU8(v uint8) { w.keep(w.enc.WriteUint8(v)) }

// WriteU32 writes a little-endian u32.
func (w *Writer) WriteU32(v uint32) { w.keep(w.enc.WriteUint32(v, binary.LittleEndian)) }

// WriteU64 writes a little-endian u64.
func (w *Writer) WriteU64(v uint64) { w.keep(w.enc.WriteUint64(v, binary.LittleEndian)) }

// WritePubkey writes the 32 key bytes.
func (w *Writer) WritePubkey(pk domain.Pubkey) { w.WriteRaw(pk[:]) }

// WriteString writes a u32 length prefix followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	w.WriteU32(uint32(len(s)))
	w.WriteRaw([]byte(s))
}

// encodeTagged returns tag followed by the borsh encoding of v. Every value
// passed here is built from strings, integers, keys and attribute slices,
// which the encoder always accepts.
func encodeTagged(tag Discriminator, v any, sizeHint int) []byte {
	w := NewWriter(DiscriminatorLength + sizeHint)
	w.WriteRaw(tag[:])
	w.Encode(v)
	if err := w.Err(); err != nil {
		panic(fmt.Sprintf("codec: encode %T: %v", v, err))
	}
	return w.Bytes()
}

// Reader consumes borsh-encoded values from a buffer. Every read checks the
// remaining length first, so truncated data fails with ErrShortBuffer.
type Reader struct {
	dec *bin.Decoder
}

// NewReader creates a reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{dec: bin.NewBorshDecoder(data)}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return r.dec.Remaining() }

func (r *Reader) need(n int, field string) error {
	if n < 0 || n > r.Remaining() {
		return fmt.Errorf("%w: %s needs %d bytes, have %d", ErrShortBuffer, field, n, r.Remaining())
	}
	return nil
}

// ReadRaw reads n raw bytes.
func (r *Reader) ReadRaw(n int, field string) ([]byte, error) {
	if err := r.need(n, field); err != nil {
		return nil, err
	}
	b, err := r.dec.ReadNBytes(n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return b, nil
}

// ReadU8 reads a single byte.
func (r *Reader) ReadU8(field string) (uint8, error) {
	if err := r.need(1, field); err != nil {
		return 0, err
	}
	v, err := r.dec.ReadUint8()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

// ReadU32 reads a little-endian u32.
func (r *Reader) ReadU32(field string) (uint32, error) {
	if err := r.need(4, field); err != nil {
		return 0, err
	}
	v, err := r.dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

// ReadU64 reads a little-endian u64.
func (r *Reader) ReadU64(field string) (uint64, error) {
	if err := r.need(8, field); err != nil {
		return 0, err
	}
	v, err := r.dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

// ReadPubkey reads 32 key bytes.
func (r *Reader) ReadPubkey(field string) (domain.Pubkey, error) {
	var pk domain.Pubkey
	b, err := r.ReadRaw(domain.PubkeyLength, field)
	if err != nil {
		return pk, err
	}
	copy(pk[:], b)
	return pk, nil
}

// ReadString reads a u32 length-prefixed string of at most maxDecodeString bytes.
func (r *Reader) ReadString(field string) (string, error) {
	n, err := r.ReadU32(field + " length")
	if err != nil {
		return "", err
	}
	if n > maxDecodeString {
		return "", fmt.Errorf("%w: %s length %d", ErrLengthLimit, field, n)
	}
	b, err := r.ReadRaw(int(n), field)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadAttributes reads a vec<{name, value}> of at most maxLen entries.
func (r *Reader) ReadAttributes(field string, maxLen int) ([]domain.Attribute, error) {
	n, err := r.ReadU32(field + " length")
	if err != nil {
		return nil, err
	}
	if int64(n) > int64(maxLen) {
		return nil, fmt.Errorf("%w: %s has %d entries (max %d)", ErrLengthLimit, field, n, maxLen)
	}
	attrs := make([]domain.Attribute, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := r.ReadString(fmt.Sprintf("%s[%d].name", field, i))
		if err != nil {
			return nil, err
		}
		value, err := r.ReadString(fmt.Sprintf("%s[%d].value", field, i))
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, domain.Attribute{Name: name, Value: value})
	}
	return attrs, nil
}
