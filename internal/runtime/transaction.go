// Package runtime executes signed program instructions against the registry,
// playing the part of the cluster that would otherwise run the programs.
package runtime

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"oracle-protocol/internal/codec"
	"oracle-protocol/internal/domain"
)

// ErrBadSignature is returned when a signature does not verify against the message.
var ErrBadSignature = errors.New("bad signature")

// messageDomain prefixes signed messages so they cannot be replayed as other payloads.
const messageDomain = "oracle-protocol/transaction/v1"

// Instruction invokes one program with an ordered account list and Anchor data.
type Instruction struct {
	ProgramID domain.Pubkey   `json:"program_id"`
	Accounts  []domain.Pubkey `json:"accounts"`
	Data      []byte          `json:"data"`
}

// Signature is an ed25519 signature over the transaction message.
type Signature struct {
	Signer    domain.Pubkey `json:"signer"`
	Signature []byte        `json:"signature"`
}

// Transaction is a single instruction plus the signatures authorizing it.
type Transaction struct {
	Instruction Instruction `json:"instruction"`
	Signatures  []Signature `json:"signatures"`
}

// Message returns the bytes every signer signs. The encoding is fixed:
// domain string, program id, account count and keys, data length and data.
func (tx *Transaction) Message() []byte {
	ix := tx.Instruction
	w := codec.NewWriter(len(messageDomain) + 4 + 32 + 4 + 32*len(ix.Accounts) + 4 + len(ix.Data))
	w.WriteString(messageDomain)
	w.WritePubkey(ix.ProgramID)
	w.WriteU32(uint32(len(ix.Accounts)))
	for _, a := range ix.Accounts {
		w.WritePubkey(a)
	}
	w.WriteU32(uint32(len(ix.Data)))
	w.WriteRaw(ix.Data)
	return w.Bytes()
}

// Sign appends a signature by key. Signing twice with one key adds nothing.
func (tx *Transaction) Sign(key ed25519.PrivateKey) {
	signer, err := domain.PubkeyFromBytes(key.Public().(ed25519.PublicKey))
	if err != nil {
		panic(fmt.Sprintf("runtime: invalid ed25519 key: %v", err))
	}
	for _, s := range tx.Signatures {
		if s.Signer == signer {
			return
		}
	}
	tx.Signatures = append(tx.Signatures, Signature{
		Signer:    signer,
		Signature: ed25519.Sign(key, tx.Message()),
	})
}

// VerifiedSigners checks every signature and returns the signer keys in order.
// A single invalid signature rejects the whole transaction.
func (tx *Transaction) VerifiedSigners() ([]domain.Pubkey, error) {
	msg := tx.Message()
	signers := make([]domain.Pubkey, 0, len(tx.Signatures))
	for i, s := range tx.Signatures {
		if len(s.Signature) != ed25519.SignatureSize {
			return nil, fmt.Errorf("%w: signature %d is %d bytes", ErrBadSignature, i, len(s.Signature))
		}
		if !ed25519.Verify(ed25519.PublicKey(s.Signer.Bytes()), msg, s.Signature) {
			return nil, fmt.Errorf("%w: signature %d by %s", ErrBadSignature, i, s.Signer)
		}
		signers = append(signers, s.Signer)
	}
	return signers, nil
}
