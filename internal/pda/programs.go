package pda

import "oracle-protocol/internal/domain"

// Default program IDs of the deployed provider and oracle programs.
var (
	DefaultProviderProgramID = domain.MustParsePubkey("2p5itgNZjWZbQkES8mygo7khSV5nD19H91Sb1ur2KyLH")
	DefaultOracleProgramID   = domain.MustParsePubkey("CRuuNGo8mY26RPw4RXchR2ZDHDZA9MBRaZQWAWbQF3ri")
)

// Programs holds the program identities addresses are derived under.
type Programs struct {
	Provider domain.Pubkey
	Oracle   domain.Pubkey
}

// DefaultPrograms returns the deployed program IDs.
func DefaultPrograms() Programs {
	return Programs{
		Provider: DefaultProviderProgramID,
		Oracle:   DefaultOracleProgramID,
	}
}

// ProviderSeeds returns the derivation seeds of a provider: [name].
func ProviderSeeds(name string) [][]byte {
	return [][]byte{NameSeed(name)}
}

// OracleSeeds returns the derivation seeds of an oracle: [provider, name].
func OracleSeeds(provider domain.Pubkey, name string) [][]byte {
	return [][]byte{provider.Bytes(), NameSeed(name)}
}

// ProviderAddress derives a provider address and canonical bump.
func (p Programs) ProviderAddress(name string) (domain.Pubkey, uint8, error) {
	return FindProgramAddress(ProviderSeeds(name), p.Provider)
}

// OracleAddress derives an oracle address and canonical bump under a provider.
func (p Programs) OracleAddress(provider domain.Pubkey, name string) (domain.Pubkey, uint8, error) {
	return FindProgramAddress(OracleSeeds(provider, name), p.Oracle)
}
