// Package feed reads provider and oracle accounts from a Solana cluster and
// streams oracle changes from account subscriptions.
package feed

import (
	"context"
	"errors"
	"fmt"

	"oracle-protocol/internal/codec"
	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/pda"
	"oracle-protocol/internal/registry"
	"oracle-protocol/internal/solana"
)

// Reader fetches registry accounts over JSON-RPC. Accounts are checked the
// same way the registry checks them: owning program, record kind and
// derivation from the stored seeds and bump.
type Reader struct {
	rpc      solana.RPCClient
	programs pda.Programs
}

// NewReader creates a Reader. Zero program IDs fall back to the deployed ones.
func NewReader(rpc solana.RPCClient, programs pda.Programs) *Reader {
	if programs.Provider.IsZero() || programs.Oracle.IsZero() {
		programs = pda.DefaultPrograms()
	}
	return &Reader{rpc: rpc, programs: programs}
}

// Provider fetches the provider at address.
func (r *Reader) Provider(ctx context.Context, address domain.Pubkey) (*domain.Provider, error) {
	info, err := r.rpc.GetAccountInfo(ctx, address)
	if err != nil {
		if errors.Is(err, solana.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", registry.ErrProviderNotFound, address)
		}
		return nil, fmt.Errorf("fetch provider %s: %w", address, err)
	}
	return decodeProvider(r.programs, address, info)
}

// ProviderByName derives the provider address for name and fetches it.
func (r *Reader) ProviderByName(ctx context.Context, name string) (*domain.Provider, error) {
	address, _, err := r.programs.ProviderAddress(name)
	if err != nil {
		return nil, fmt.Errorf("derive provider %q: %w", name, err)
	}
	return r.Provider(ctx, address)
}

// Oracle fetches the oracle at address.
func (r *Reader) Oracle(ctx context.Context, address domain.Pubkey) (*domain.Oracle, error) {
	info, err := r.rpc.GetAccountInfo(ctx, address)
	if err != nil {
		if errors.Is(err, solana.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", registry.ErrOracleNotFound, address)
		}
		return nil, fmt.Errorf("fetch oracle %s: %w", address, err)
	}
	return decodeOracle(r.programs, address, info)
}

// OracleByName derives the oracle address for (provider, name) and fetches it.
func (r *Reader) OracleByName(ctx context.Context, provider domain.Pubkey, name string) (*domain.Oracle, error) {
	address, _, err := r.programs.OracleAddress(provider, name)
	if err != nil {
		return nil, fmt.Errorf("derive oracle %q: %w", name, err)
	}
	return r.Oracle(ctx, address)
}

// Oracles lists every oracle administered by provider. The provider key sits
// right after the discriminator in an oracle record, so the cluster filters
// on both.
func (r *Reader) Oracles(ctx context.Context, provider domain.Pubkey) ([]*domain.Oracle, error) {
	accounts, err := r.rpc.GetProgramAccounts(ctx, r.programs.Oracle,
		solana.MemcmpFilter{Offset: 0, Bytes: codec.OracleDiscriminator[:]},
		solana.MemcmpFilter{Offset: codec.DiscriminatorLength, Bytes: provider.Bytes()},
	)
	if err != nil {
		return nil, fmt.Errorf("list oracles of %s: %w", provider, err)
	}

	oracles := make([]*domain.Oracle, 0, len(accounts))
	for i := range accounts {
		o, err := decodeOracle(r.programs, accounts[i].Address, &accounts[i].Account)
		if err != nil {
			return nil, err
		}
		oracles = append(oracles, o)
	}
	return oracles, nil
}

func decodeProvider(programs pda.Programs, address domain.Pubkey, info *solana.AccountInfo) (*domain.Provider, error) {
	if info.Owner != programs.Provider {
		return nil, fmt.Errorf("%w: %s is owned by %s, not the provider program", registry.ErrAccountMismatch, address, info.Owner)
	}
	p, err := codec.DecodeProvider(info.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", registry.ErrAccountMismatch, address, err)
	}
	p.Address = address

	if !pda.VerifyProgramAddress(address, pda.ProviderSeeds(p.Name), p.Bump, programs.Provider) {
		return nil, fmt.Errorf("%w: %s does not derive from provider %q", registry.ErrAccountMismatch, address, p.Name)
	}
	return p, nil
}

func decodeOracle(programs pda.Programs, address domain.Pubkey, info *solana.AccountInfo) (*domain.Oracle, error) {
	if info.Owner != programs.Oracle {
		return nil, fmt.Errorf("%w: %s is owned by %s, not the oracle program", registry.ErrAccountMismatch, address, info.Owner)
	}
	o, err := codec.DecodeOracle(info.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", registry.ErrAccountMismatch, address, err)
	}
	o.Address = address

	if !pda.VerifyProgramAddress(address, pda.OracleSeeds(o.Provider, o.Name), o.Bump, programs.Oracle) {
		return nil, fmt.Errorf("%w: %s does not derive from oracle %q under %s", registry.ErrAccountMismatch, address, o.Name, o.Provider)
	}
	return o, nil
}
