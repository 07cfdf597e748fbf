package registry

import (
	"errors"

	"oracle-protocol/internal/pda"
)

// Registry errors. Every one is returned before any account is written.
var (
	// ErrAlreadyExists means the derived address already holds an account.
	ErrAlreadyExists = errors.New("account already exists")

	// ErrProviderNotFound means no provider account exists at the address.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrOracleNotFound means no oracle account exists at the address.
	ErrOracleNotFound = errors.New("oracle not found")

	// ErrAccountMismatch means a supplied account does not match its seeds,
	// bump, owning program, record kind or the provider it claims.
	ErrAccountMismatch = errors.New("account mismatch")

	// ErrUnauthorized means no signer matches the stored owner.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidName means a provider or oracle name is empty or too long.
	ErrInvalidName = errors.New("invalid name")

	// ErrInvalidCapacity means a provider capacity is outside 1..MaxCapacity.
	ErrInvalidCapacity = errors.New("invalid capacity")

	// ErrInvalidAttributes means an attribute set breaks the size limits.
	ErrInvalidAttributes = errors.New("invalid attributes")
)

// Result codes. They label metrics and appear in receipts and API errors.
const (
	CodeOK                  = "ok"
	CodeAlreadyExists       = "already_exists"
	CodeProviderNotFound    = "provider_not_found"
	CodeOracleNotFound      = "oracle_not_found"
	CodeAccountMismatch     = "account_mismatch"
	CodeUnauthorized        = "unauthorized"
	CodeInvalidName         = "invalid_name"
	CodeInvalidCapacity     = "invalid_capacity"
	CodeInvalidAttributes   = "invalid_attributes"
	CodeDerivationExhausted = "derivation_exhausted"
	CodeInternal            = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrAlreadyExists, CodeAlreadyExists},
	{ErrProviderNotFound, CodeProviderNotFound},
	{ErrOracleNotFound, CodeOracleNotFound},
	{ErrAccountMismatch, CodeAccountMismatch},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrInvalidName, CodeInvalidName},
	{ErrInvalidCapacity, CodeInvalidCapacity},
	{ErrInvalidAttributes, CodeInvalidAttributes},
	{pda.ErrDerivationExhausted, CodeDerivationExhausted},
}

// Code maps an error to its stable result code. A nil error is CodeOK and
// anything unrecognised is CodeInternal.
func Code(err error) string {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
