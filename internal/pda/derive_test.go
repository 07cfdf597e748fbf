package pda

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oracle-protocol/internal/domain"
)

func TestFindProgramAddress_KnownVectors(t *testing.T) {
	programs := DefaultPrograms()

	tests := []struct {
		name         string
		providerName string
		wantProvider string
		wantBump     uint8
		wantOracle   string
		wantOBump    uint8
	}{
		{
			name:         "canonical bump 255",
			providerName: "acme-prices",
			wantProvider: "J79JdYb1oNNiHqD2UCZkb8Viubdog3BunPfiHksqrtuv",
			wantBump:     255,
			wantOracle:   "BwvPSeYJMznoqRPZ4v1NwzKi7vb8ZGCVaenKVCo6FRUu",
			wantOBump:    255,
		},
		{
			name:         "bump below 255",
			providerName: "other-provider",
			wantProvider: "DpXZkd25qbnbyPiQgJt1MghAGPN81BDcEms4QnPtUykj",
			wantBump:     254,
			wantOracle:   "2jUixk2RoRzuPrXw558LNuXMy1wyESV3CGejs2FU92HJ",
			wantOBump:    253,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, bump, err := programs.ProviderAddress(tt.providerName)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, addr.String())
			assert.Equal(t, tt.wantBump, bump)

			oracle, oBump, err := programs.OracleAddress(addr, "APPL/USD")
			require.NoError(t, err)
			assert.Equal(t, tt.wantOracle, oracle.String())
			assert.Equal(t, tt.wantOBump, oBump)
		})
	}
}

func TestFindProgramAddress_SkipsOnCurveBumps(t *testing.T) {
	addr, bump, err := FindProgramAddress([][]byte{[]byte("n3")}, DefaultProviderProgramID)
	require.NoError(t, err)
	assert.Equal(t, "GFzCkf3kpfCSpL3Rqqq9iBYdHDzQhgSvTMcmbstheT4x", addr.String())
	assert.Equal(t, uint8(251), bump)

	// Every higher bump must have landed on the curve.
	for b := 255; b > int(bump); b-- {
		_, err := CreateProgramAddress([][]byte{[]byte("n3"), {byte(b)}}, DefaultProviderProgramID)
		assert.ErrorIs(t, err, ErrOnCurve, "bump %d", b)
	}
}

func TestFindProgramAddress_Exhausted(t *testing.T) {
	var attempts int
	restore := SetCurveCheck(func([]byte) bool {
		attempts++
		return true
	})
	defer restore()

	_, _, err := FindProgramAddress(ProviderSeeds("acme"), DefaultProviderProgramID)
	assert.True(t, errors.Is(err, ErrDerivationExhausted), "got %v", err)
	assert.Equal(t, 255, attempts, "bumps 255..1, never 0")
}

func TestFindProgramAddress_NeverUsesBumpZero(t *testing.T) {
	seeds := ProviderSeeds("acme")
	zero, err := CreateProgramAddress(append(ProviderSeeds("acme"), []byte{0}), DefaultProviderProgramID)
	if err != nil {
		t.Skipf("bump 0 is on the curve for this seed set: %v", err)
	}

	// Only the bump-0 candidate is off the curve.
	restore := SetCurveCheck(func(point []byte) bool {
		return !bytes.Equal(point, zero[:])
	})
	defer restore()

	_, _, err = FindProgramAddress(seeds, DefaultProviderProgramID)
	assert.ErrorIs(t, err, ErrDerivationExhausted)
}

func TestFindProgramAddress_Determinism(t *testing.T) {
	seeds := [][]byte{[]byte("determinism"), []byte("APPL/USD")}

	first, firstBump, err := FindProgramAddress(seeds, DefaultOracleProgramID)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		addr, bump, err := FindProgramAddress(seeds, DefaultOracleProgramID)
		require.NoError(t, err)
		if addr != first || bump != firstBump {
			t.Fatalf("Determinism failed: run %d got %s/%d, want %s/%d", i, addr, bump, first, firstBump)
		}
	}
}

func TestFindProgramAddress_OffCurve(t *testing.T) {
	for _, name := range []string{"a", "b", "acme", "APPL/USD", strings.Repeat("x", 32)} {
		addr, _, err := FindProgramAddress([][]byte{[]byte(name)}, DefaultProviderProgramID)
		require.NoError(t, err)
		assert.False(t, IsOnCurve(addr[:]), "address for %q is on curve", name)
	}
}

func TestFindProgramAddress_DifferentInputs(t *testing.T) {
	base, _, err := FindProgramAddress([][]byte{[]byte("seed")}, DefaultProviderProgramID)
	require.NoError(t, err)

	diffSeed, _, err := FindProgramAddress([][]byte{[]byte("seed2")}, DefaultProviderProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, base, diffSeed, "different seed should produce different address")

	diffProgram, _, err := FindProgramAddress([][]byte{[]byte("seed")}, DefaultOracleProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, base, diffProgram, "different program should produce different address")
}

func TestCreateProgramAddress_SeedLimits(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{bytes.Repeat([]byte{1}, MaxSeedLength+1)}, DefaultProviderProgramID)
	assert.ErrorIs(t, err, ErrMaxSeedLength)

	tooMany := make([][]byte, MaxSeeds+1)
	for i := range tooMany {
		tooMany[i] = []byte{byte(i)}
	}
	_, err = CreateProgramAddress(tooMany, DefaultProviderProgramID)
	assert.ErrorIs(t, err, ErrMaxSeeds)

	// FindProgramAddress reserves one slot for the bump.
	_, _, err = FindProgramAddress(tooMany[:MaxSeeds], DefaultProviderProgramID)
	assert.ErrorIs(t, err, ErrMaxSeeds)
}

func TestVerifyProgramAddress(t *testing.T) {
	seeds := ProviderSeeds("acme-prices")
	addr, bump, err := FindProgramAddress(seeds, DefaultProviderProgramID)
	require.NoError(t, err)

	assert.True(t, VerifyProgramAddress(addr, seeds, bump, DefaultProviderProgramID))
	assert.False(t, VerifyProgramAddress(addr, seeds, bump-1, DefaultProviderProgramID))
	assert.False(t, VerifyProgramAddress(addr, seeds, bump, DefaultOracleProgramID))
	assert.False(t, VerifyProgramAddress(addr, ProviderSeeds("acme"), bump, DefaultProviderProgramID))
}

func TestIsOnCurve(t *testing.T) {
	// Standard ed25519 base point encoding.
	basePoint := []byte{
		0x58, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
	}
	assert.True(t, IsOnCurve(basePoint))
	assert.False(t, IsOnCurve(basePoint[:31]), "short input is never a point")
}

func TestNameSeed(t *testing.T) {
	assert.Equal(t, []byte("short"), NameSeed("short"))

	long := strings.Repeat("a", 40)
	assert.Len(t, NameSeed(long), MaxSeedLength)

	// Truncated names collide by construction.
	a, _, err := DefaultPrograms().ProviderAddress(strings.Repeat("a", 32) + "tail1")
	require.NoError(t, err)
	b, _, err := DefaultPrograms().ProviderAddress(strings.Repeat("a", 32) + "tail2")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDefaultPrograms(t *testing.T) {
	p := DefaultPrograms()
	assert.Equal(t, "2p5itgNZjWZbQkES8mygo7khSV5nD19H91Sb1ur2KyLH", p.Provider.String())
	assert.Equal(t, "CRuuNGo8mY26RPw4RXchR2ZDHDZA9MBRaZQWAWbQF3ri", p.Oracle.String())
	assert.NotEqual(t, domain.Pubkey{}, p.Provider)
}
