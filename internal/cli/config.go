package cli

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/pda"
)

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

// programs resolves the program IDs, falling back to the deployed ones.
func (a *app) programs() (pda.Programs, error) {
	programs := pda.DefaultPrograms()
	if s := a.v.GetString(keyProviderProgram); s != "" {
		id, err := domain.ParsePubkey(s)
		if err != nil {
			return pda.Programs{}, fmt.Errorf("provider program id: %w", err)
		}
		programs.Provider = id
	}
	if s := a.v.GetString(keyOracleProgram); s != "" {
		id, err := domain.ParsePubkey(s)
		if err != nil {
			return pda.Programs{}, fmt.Errorf("oracle program id: %w", err)
		}
		programs.Oracle = id
	}
	return programs, nil
}

// signer loads the configured keypair.
func (a *app) signer() (ed25519.PrivateKey, domain.Pubkey, error) {
	path := a.v.GetString(keyKeypair)
	if path == "" {
		return nil, domain.Pubkey{}, fmt.Errorf("no keypair configured (--keypair or ORACLECTL_KEYPAIR)")
	}
	return LoadKeypair(path)
}

// LoadKeypair reads a Solana CLI keypair file: a JSON array of the 64 bytes
// seed || public key. The stored public key must match the seed.
func LoadKeypair(path string) (ed25519.PrivateKey, domain.Pubkey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.Pubkey{}, fmt.Errorf("read keypair: %w", err)
	}

	var raw []byte
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, domain.Pubkey{}, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, domain.Pubkey{}, fmt.Errorf("keypair %s: %d bytes, want %d", path, len(ints), ed25519.PrivateKeySize)
	}
	raw = make([]byte, len(ints))
	for i, n := range ints {
		if n < 0 || n > 255 {
			return nil, domain.Pubkey{}, fmt.Errorf("keypair %s: byte %d out of range", path, i)
		}
		raw[i] = byte(n)
	}

	key := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !key.Equal(ed25519.PrivateKey(raw)) {
		return nil, domain.Pubkey{}, fmt.Errorf("keypair %s: public key does not match seed", path)
	}
	pub, err := domain.PubkeyFromBytes(key.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, domain.Pubkey{}, err
	}
	return key, pub, nil
}
