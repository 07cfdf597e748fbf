package runtime

import (
	"fmt"

	"oracle-protocol/internal/codec"
	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/pda"
)

// NewProviderInitialize builds a provider initialize instruction for user,
// deriving the provider account and bump from name.
func NewProviderInitialize(programs pda.Programs, user domain.Pubkey, name string, capacity uint32) (Instruction, error) {
	address, bump, err := programs.ProviderAddress(name)
	if err != nil {
		return Instruction{}, fmt.Errorf("derive provider %q: %w", name, err)
	}
	return Instruction{
		ProgramID: programs.Provider,
		Accounts:  []domain.Pubkey{address, user, domain.SystemProgramID},
		Data: codec.EncodeProviderInitialize(codec.ProviderInitializeArgs{
			Name:     name,
			Capacity: capacity,
			Bump:     bump,
		}),
	}, nil
}

// NewOracleInitialize builds an oracle initialize instruction under provider.
func NewOracleInitialize(programs pda.Programs, user, provider domain.Pubkey, name string, attrs []domain.Attribute) (Instruction, error) {
	address, bump, err := programs.OracleAddress(provider, name)
	if err != nil {
		return Instruction{}, fmt.Errorf("derive oracle %q: %w", name, err)
	}
	return Instruction{
		ProgramID: programs.Oracle,
		Accounts:  []domain.Pubkey{address, provider, user, domain.SystemProgramID},
		Data: codec.EncodeOracleInitialize(codec.OracleInitializeArgs{
			Name:       name,
			Attributes: attrs,
			Bump:       bump,
		}),
	}, nil
}

// NewOracleUpdate builds an oracle update instruction.
func NewOracleUpdate(programs pda.Programs, user, oracle, provider domain.Pubkey, attrs []domain.Attribute) Instruction {
	return Instruction{
		ProgramID: programs.Oracle,
		Accounts:  []domain.Pubkey{oracle, provider, user, domain.SystemProgramID},
		Data:      codec.EncodeOracleUpdate(codec.OracleUpdateArgs{Attributes: attrs}),
	}
}
