package codec

import (
	"errors"
	"fmt"

	"oracle-protocol/internal/domain"
)

// ErrTrailingBytes is returned when instruction data has bytes after the last argument.
var ErrTrailingBytes = errors.New("trailing bytes after instruction arguments")

// Instruction tags: SHA256("global:<name>")[:8].
var (
	InitializeInstruction = hashDiscriminator("global:initialize")
	UpdateInstruction     = hashDiscriminator("global:update")
)

// ProviderInitializeArgs are the arguments of provider initialize(name, size, bump).
// Field order is the borsh layout.
type ProviderInitializeArgs struct {
	Name     string
	Capacity uint32
	Bump     uint8
}

// OracleInitializeArgs are the arguments of oracle initialize(name, data, bump).
type OracleInitializeArgs struct {
	Name       string
	Attributes []domain.Attribute
	Bump       uint8
}

// OracleUpdateArgs are the arguments of oracle update(data).
type OracleUpdateArgs struct {
	Attributes []domain.Attribute
}

// InstructionTag returns the discriminator at the start of instruction data.
func InstructionTag(data []byte) (Discriminator, error) {
	var d Discriminator
	if len(data) < DiscriminatorLength {
		return d, fmt.Errorf("%w: instruction data is %d bytes", ErrShortBuffer, len(data))
	}
	copy(d[:], data[:DiscriminatorLength])
	return d, nil
}

// EncodeProviderInitialize serializes provider initialize instruction data.
func EncodeProviderInitialize(a ProviderInitializeArgs) []byte {
	return encodeTagged(InitializeInstruction, &a, 4+len(a.Name)+4+1)
}

// DecodeProviderInitialize parses provider initialize instruction data.
func DecodeProviderInitialize(data []byte) (*ProviderInitializeArgs, error) {
	r, err := instructionReader(data, InitializeInstruction)
	if err != nil {
		return nil, err
	}
	var a ProviderInitializeArgs
	if a.Name, err = r.ReadString("name"); err != nil {
		return nil, err
	}
	if a.Capacity, err = r.ReadU32("size"); err != nil {
		return nil, err
	}
	if a.Bump, err = r.ReadU8("bump"); err != nil {
		return nil, err
	}
	return &a, finish(r)
}

// EncodeOracleInitialize serializes oracle initialize instruction data.
func EncodeOracleInitialize(a OracleInitializeArgs) []byte {
	return encodeTagged(InitializeInstruction, &a, 64)
}

// DecodeOracleInitialize parses oracle initialize instruction data.
func DecodeOracleInitialize(data []byte) (*OracleInitializeArgs, error) {
	r, err := instructionReader(data, InitializeInstruction)
	if err != nil {
		return nil, err
	}
	var a OracleInitializeArgs
	if a.Name, err = r.ReadString("name"); err != nil {
		return nil, err
	}
	if a.Attributes, err = r.ReadAttributes("data", maxDecodeAttributes); err != nil {
		return nil, err
	}
	if a.Bump, err = r.ReadU8("bump"); err != nil {
		return nil, err
	}
	return &a, finish(r)
}

// EncodeOracleUpdate serializes oracle update instruction data.
func EncodeOracleUpdate(a OracleUpdateArgs) []byte {
	return encodeTagged(UpdateInstruction, &a, 64)
}

// DecodeOracleUpdate parses oracle update instruction data.
func DecodeOracleUpdate(data []byte) (*OracleUpdateArgs, error) {
	r, err := instructionReader(data, UpdateInstruction)
	if err != nil {
		return nil, err
	}
	var a OracleUpdateArgs
	if a.Attributes, err = r.ReadAttributes("data", maxDecodeAttributes); err != nil {
		return nil, err
	}
	return &a, finish(r)
}

func instructionReader(data []byte, want Discriminator) (*Reader, error) {
	if !HasDiscriminator(data, want) {
		return nil, fmt.Errorf("%w: unexpected instruction tag", ErrDiscriminator)
	}
	return NewReader(data[DiscriminatorLength:]), nil
}

func finish(r *Reader) error {
	if n := r.Remaining(); n != 0 {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, n)
	}
	return nil
}
