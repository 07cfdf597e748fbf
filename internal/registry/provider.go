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

// ProviderParams are the arguments of provider initialization.
type ProviderParams struct {
	Name     string
	Capacity uint32
	Bump     uint8 // must equal the canonical bump of the name

	// Address, when set, is the account the caller supplied for the
	// provider; it must equal the derived address.
	Address domain.Pubkey
}

// InitializeProvider claims a name for caller.Authority, which must have signed.
func (r *Registry) InitializeProvider(ctx context.Context, caller Caller, params ProviderParams) (_ *domain.Provider, err error) {
	defer r.observe(programProvider, "initialize", time.Now(), &err)

	if !Authorize(caller.Authority, caller.Signers) {
		return nil, fmt.Errorf("%w: authority %s did not sign", ErrUnauthorized, caller.Authority)
	}
	if err := validateName(params.Name); err != nil {
		return nil, err
	}
	if err := validateCapacity(params.Capacity); err != nil {
		return nil, err
	}

	address, bump, err := r.programs.ProviderAddress(params.Name)
	if err != nil {
		return nil, fmt.Errorf("derive provider %q: %w", params.Name, err)
	}
	if params.Bump != bump {
		return nil, fmt.Errorf("%w: provider %q bump %d, canonical %d", ErrAccountMismatch, params.Name, params.Bump, bump)
	}
	if !params.Address.IsZero() && params.Address != address {
		return nil, fmt.Errorf("%w: provider %q derives to %s, got %s", ErrAccountMismatch, params.Name, address, params.Address)
	}

	p := &domain.Provider{
		Address:  address,
		Name:     params.Name,
		Owner:    caller.Authority,
		Capacity: params.Capacity,
		Bump:     bump,
	}
	account := &domain.Account{
		Address: address,
		Owner:   r.programs.Provider,
		Data:    codec.EncodeProvider(p),
	}
	if err := r.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: provider %q at %s", ErrAlreadyExists, params.Name, address)
		}
		return nil, fmt.Errorf("create provider account: %w", err)
	}

	r.logger.Printf("provider %q created at %s, owner %s", p.Name, p.Address, p.Owner)
	return p, nil
}

// GetProvider loads and verifies the provider account at address.
func (r *Registry) GetProvider(ctx context.Context, address domain.Pubkey) (*domain.Provider, error) {
	return r.loadProvider(ctx, address)
}

// loadProvider returns ErrProviderNotFound for an empty address and
// ErrAccountMismatch when the account is not a provider record that
// re-derives to address.
func (r *Registry) loadProvider(ctx context.Context, address domain.Pubkey) (*domain.Provider, error) {
	account, err := r.accounts.Get(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, address)
		}
		return nil, fmt.Errorf("load provider %s: %w", address, err)
	}
	if account.Owner != r.programs.Provider {
		return nil, fmt.Errorf("%w: %s is owned by %s, not the provider program", ErrAccountMismatch, address, account.Owner)
	}

	p, err := codec.DecodeProvider(account.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAccountMismatch, address, err)
	}
	p.Address = address

	if !pda.VerifyProgramAddress(address, pda.ProviderSeeds(p.Name), p.Bump, r.programs.Provider) {
		return nil, fmt.Errorf("%w: %s does not derive from provider %q", ErrAccountMismatch, address, p.Name)
	}
	return p, nil
}
