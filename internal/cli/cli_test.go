package cli

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oracle-protocol/internal/api"
	"oracle-protocol/internal/codec"
	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/observability"
	"oracle-protocol/internal/pda"
	"oracle-protocol/internal/registry"
	"oracle-protocol/internal/runtime"
	"oracle-protocol/internal/storage/memory"
)

// writeKeypair stores a Solana CLI keypair file derived from seed.
func writeKeypair(t *testing.T, seed byte) (string, domain.Pubkey) {
	t.Helper()
	key := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	pub, err := domain.PubkeyFromBytes(key.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	return path, pub
}

// run executes oraclectl with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// registryServer runs the registry HTTP API over memory stores.
func registryServer(t *testing.T) *httptest.Server {
	t.Helper()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	reg := registry.New(registry.Options{Accounts: memory.NewAccountStore(), History: memory.NewHistoryStore(), Metrics: metrics})
	srv := api.New(api.Options{
		Registry:  reg,
		Processor: runtime.NewProcessor(runtime.ProcessorOptions{Registry: reg, Metrics: metrics}),
		Metrics:   metrics,
	})
	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)
	return server
}

func TestLoadKeypair(t *testing.T) {
	path, want := writeKeypair(t, 3)

	key, pub, err := LoadKeypair(path)
	require.NoError(t, err)
	assert.Equal(t, want, pub)
	assert.Len(t, key, ed25519.PrivateKeySize)
}

func TestLoadKeypair_Invalid(t *testing.T) {
	dir := t.TempDir()

	short := filepath.Join(dir, "short.json")
	require.NoError(t, os.WriteFile(short, []byte("[1,2,3]"), 0o600))
	_, _, err := LoadKeypair(short)
	assert.Error(t, err)

	// Valid length but the public half does not belong to the seed.
	ints := make([]int, ed25519.PrivateKeySize)
	for i := range ints {
		ints[i] = 7
	}
	data, _ := json.Marshal(ints)
	mismatched := filepath.Join(dir, "mismatched.json")
	require.NoError(t, os.WriteFile(mismatched, data, 0o600))
	_, _, err = LoadKeypair(mismatched)
	assert.Error(t, err)

	_, _, err = LoadKeypair(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestDerive(t *testing.T) {
	out, err := run(t, "derive", "provider", "acme")
	require.NoError(t, err)

	var got derivedAddress
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	want, bump, err := pda.DefaultPrograms().ProviderAddress("acme")
	require.NoError(t, err)
	assert.Equal(t, want, got.Address)
	assert.Equal(t, bump, got.Bump)

	out, err = run(t, "derive", "oracle", want.String(), "APPL/USD")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	wantOracle, _, err := pda.DefaultPrograms().OracleAddress(want, "APPL/USD")
	require.NoError(t, err)
	assert.Equal(t, wantOracle, got.Address)

	_, err = run(t, "derive", "oracle", "not-a-key", "x")
	assert.Error(t, err)
}

func TestDerive_ProgramOverrideFromEnv(t *testing.T) {
	custom := domain.Pubkey{0x42}
	t.Setenv("ORACLECTL_PROVIDER_PROGRAM_ID", custom.String())

	out, err := run(t, "derive", "provider", "acme")
	require.NoError(t, err)

	var got derivedAddress
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	want, _, err := pda.FindProgramAddress(pda.ProviderSeeds("acme"), custom)
	require.NoError(t, err)
	assert.Equal(t, want, got.Address)
}

func TestSubmitFlow(t *testing.T) {
	server := registryServer(t)
	keypair, _ := writeKeypair(t, 1)
	common := []string{"--server", server.URL, "--keypair", keypair}

	out, err := run(t, append([]string{"provider", "create", "acme", "--capacity", "3"}, common...)...)
	require.NoError(t, err)
	var receipt runtime.Receipt
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	assert.Equal(t, registry.CodeOK, receipt.Result)
	provider := receipt.Account

	out, err = run(t, append([]string{"provider", "create", "acme"}, common...)...)
	require.Error(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	assert.Equal(t, registry.CodeAlreadyExists, receipt.Result)

	out, err = run(t, append([]string{"oracle", "create", provider.String(), "APPL/USD", "--attr", "price=189.5"}, common...)...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	oracle := receipt.Account

	_, err = run(t, append([]string{"oracle", "update", oracle.String(), provider.String(), "--attr", "price=190", "--attr", "volume=12"}, common...)...)
	require.NoError(t, err)

	resp, err := http.Get(server.URL + "/v1/oracles/" + oracle.String())
	require.NoError(t, err)
	defer resp.Body.Close()
	var o struct {
		Attributes []domain.Attribute `json:"attributes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&o))
	assert.Equal(t, []domain.Attribute{{Name: "price", Value: "190"}, {Name: "volume", Value: "12"}}, o.Attributes)

	// A different keypair is refused.
	intruder, _ := writeKeypair(t, 2)
	_, err = run(t, "oracle", "update", oracle.String(), provider.String(), "--server", server.URL, "--keypair", intruder)
	assert.ErrorContains(t, err, registry.CodeUnauthorized)
}

func TestFetchProvider(t *testing.T) {
	programs := pda.DefaultPrograms()
	address, bump, err := programs.ProviderAddress("acme")
	require.NoError(t, err)
	p := &domain.Provider{Address: address, Name: "acme", Owner: domain.Pubkey{9}, Capacity: 2, Bump: bump}
	data := base64.StdEncoding.EncodeToString(codec.EncodeProvider(p))

	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID uint64 `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]any{
				"context": map[string]any{"slot": 1},
				"value": map[string]any{
					"owner": programs.Provider.String(),
					"data":  []string{data, "base64"},
				},
			},
		})
	}))
	defer rpc.Close()

	out, err := run(t, "fetch", "provider", address.String(), "--rpc-endpoint", rpc.URL)
	require.NoError(t, err)

	var got providerJSON
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, providerView(p), got)
}

func TestParseAttributes(t *testing.T) {
	attrs, err := parseAttributes([]string{"price=1.5", "note=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, []domain.Attribute{
		{Name: "price", Value: "1.5"},
		{Name: "note", Value: "a=b"},
		{Name: "empty", Value: ""},
	}, attrs)

	_, err = parseAttributes([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseAttributes([]string{"=x"})
	assert.Error(t, err)
}
