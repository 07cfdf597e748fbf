package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oracle-protocol/internal/codec"
	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/pda"
	"oracle-protocol/internal/storage"
)

// OracleParams are the arguments of oracle initialization.
type OracleParams struct {
	Name       string
	Attributes []domain.Attribute
	Bump       uint8 // must equal the canonical bump of [provider, name]

	// Address, when set, must equal the derived oracle address.
	Address domain.Pubkey
}

// InitializeOracle creates an oracle under providerAddr. One of the caller's
// signers must be the provider owner.
func (r *Registry) InitializeOracle(ctx context.Context, caller Caller, providerAddr domain.Pubkey, params OracleParams) (_ *domain.Oracle, err error) {
	defer r.observe(programOracle, "initialize", time.Now(), &err)

	provider, err := r.loadProvider(ctx, providerAddr)
	if err != nil {
		return nil, err
	}
	if !Authorize(provider.Owner, caller.Signers) {
		return nil, fmt.Errorf("%w: provider %q is owned by %s", ErrUnauthorized, provider.Name, provider.Owner)
	}
	if err := validateName(params.Name); err != nil {
		return nil, err
	}
	if err := validateAttributes(params.Attributes); err != nil {
		return nil, err
	}

	address, bump, err := r.programs.OracleAddress(providerAddr, params.Name)
	if err != nil {
		return nil, fmt.Errorf("derive oracle %q: %w", params.Name, err)
	}
	if params.Bump != bump {
		return nil, fmt.Errorf("%w: oracle %q bump %d, canonical %d", ErrAccountMismatch, params.Name, params.Bump, bump)
	}
	if !params.Address.IsZero() && params.Address != address {
		return nil, fmt.Errorf("%w: oracle %q derives to %s, got %s", ErrAccountMismatch, params.Name, address, params.Address)
	}

	o := &domain.Oracle{
		Address:    address,
		Provider:   providerAddr,
		Name:       params.Name,
		Attributes: domain.CloneAttributes(params.Attributes),
		Bump:       bump,
	}
	account := &domain.Account{
		Address: address,
		Owner:   r.programs.Oracle,
		Data:    codec.EncodeOracle(o),
	}
	if err := r.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: oracle %q at %s", ErrAlreadyExists, params.Name, address)
		}
		return nil, fmt.Errorf("create oracle account: %w", err)
	}

	r.logger.Printf("oracle %q created at %s under provider %q", o.Name, o.Address, provider.Name)
	r.recordRevision(ctx, o, domain.RevisionInitialize, provider.Owner)
	return o, nil
}

// UpdateOracle replaces the attribute set of an existing oracle. The
// provider must be the one the oracle was created under, and one of the
// caller's signers must be its owner. The previous set is kept on any error.
func (r *Registry) UpdateOracle(ctx context.Context, caller Caller, oracleAddr, providerAddr domain.Pubkey, attributes []domain.Attribute) (_ *domain.Oracle, err error) {
	defer r.observe(programOracle, "update", time.Now(), &err)

	o, err := r.loadOracle(ctx, oracleAddr)
	if err != nil {
		return nil, err
	}
	if o.Provider != providerAddr {
		return nil, fmt.Errorf("%w: oracle %s belongs to provider %s, not %s", ErrAccountMismatch, oracleAddr, o.Provider, providerAddr)
	}

	provider, err := r.loadProvider(ctx, providerAddr)
	if err != nil {
		return nil, err
	}
	if !Authorize(provider.Owner, caller.Signers) {
		return nil, fmt.Errorf("%w: provider %q is owned by %s", ErrUnauthorized, provider.Name, provider.Owner)
	}
	if err := validateAttributes(attributes); err != nil {
		return nil, err
	}

	updated := *o
	updated.Attributes = domain.CloneAttributes(attributes)
	if err := r.accounts.Update(ctx, oracleAddr, codec.EncodeOracle(&updated)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOracleNotFound, oracleAddr)
		}
		return nil, fmt.Errorf("update oracle account: %w", err)
	}

	r.logger.Printf("oracle %q at %s updated with %d attributes", updated.Name, updated.Address, len(updated.Attributes))
	r.recordRevision(ctx, &updated, domain.RevisionUpdate, provider.Owner)
	return &updated, nil
}

// GetOracle loads and verifies the oracle account at address.
func (r *Registry) GetOracle(ctx context.Context, address domain.Pubkey) (*domain.Oracle, error) {
	return r.loadOracle(ctx, address)
}

func (r *Registry) loadOracle(ctx context.Context, address domain.Pubkey) (*domain.Oracle, error) {
	account, err := r.accounts.Get(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOracleNotFound, address)
		}
		return nil, fmt.Errorf("load oracle %s: %w", address, err)
	}
	if account.Owner != r.programs.Oracle {
		return nil, fmt.Errorf("%w: %s is owned by %s, not the oracle program", ErrAccountMismatch, address, account.Owner)
	}

	o, err := codec.DecodeOracle(account.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAccountMismatch, address, err)
	}
	o.Address = address

	if !pda.VerifyProgramAddress(address, pda.OracleSeeds(o.Provider, o.Name), o.Bump, r.programs.Oracle) {
		return nil, fmt.Errorf("%w: %s does not derive from oracle %q under %s", ErrAccountMismatch, address, o.Name, o.Provider)
	}
	return o, nil
}
