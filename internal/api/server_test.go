package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/observability"
	"oracle-protocol/internal/pda"
	"oracle-protocol/internal/registry"
	"oracle-protocol/internal/runtime"
	"oracle-protocol/internal/storage/memory"
)

func testKey(seed byte) (ed25519.PrivateKey, domain.Pubkey) {
	key := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
	pk, _ := domain.PubkeyFromBytes(key.Public().(ed25519.PublicKey))
	return key, pk
}

type testServer struct {
	handler  http.Handler
	programs pda.Programs
	metrics  *observability.Metrics
}

func newTestServer(t *testing.T, checks map[string]HealthCheck) *testServer {
	t.Helper()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	reg := registry.New(registry.Options{
		Accounts: memory.NewAccountStore(),
		History:  memory.NewHistoryStore(),
		Metrics:  metrics,
	})
	srv := New(Options{
		Registry:  reg,
		Processor: runtime.NewProcessor(runtime.ProcessorOptions{Registry: reg, Metrics: metrics}),
		Checks:    checks,
		Metrics:   metrics,
	})
	return &testServer{handler: srv.Handler(), programs: reg.Programs(), metrics: metrics}
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) submit(t *testing.T, ix runtime.Instruction, keys ...ed25519.PrivateKey) (*httptest.ResponseRecorder, runtime.Receipt) {
	t.Helper()
	tx := &runtime.Transaction{Instruction: ix}
	for _, k := range keys {
		tx.Sign(k)
	}
	body, err := json.Marshal(tx)
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/v1/transactions", body)
	var receipt runtime.Receipt
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&receipt))
	return rec, receipt
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestSubmit_ProviderLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	key, user := testKey(1)

	ix, err := runtime.NewProviderInitialize(ts.programs, user, "acme", 3)
	require.NoError(t, err)

	rec, receipt := ts.submit(t, ix, key)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, registry.CodeOK, receipt.Result)
	assert.Equal(t, ix.Accounts[0], receipt.Account)

	rec, receipt = ts.submit(t, ix, key)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, registry.CodeAlreadyExists, receipt.Result)

	rec = ts.do(t, http.MethodGet, "/v1/providers/"+ix.Accounts[0].String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[providerResponse](t, rec)
	assert.Equal(t, "acme", p.Name)
	assert.Equal(t, user, p.Owner)
	assert.Equal(t, uint32(3), p.Capacity)
}

func TestSubmit_Rejections(t *testing.T) {
	ts := newTestServer(t, nil)
	key, user := testKey(1)
	otherKey, _ := testKey(2)

	ix, err := runtime.NewProviderInitialize(ts.programs, user, "acme", 3)
	require.NoError(t, err)

	t.Run("signed by someone else", func(t *testing.T) {
		rec, receipt := ts.submit(t, ix, otherKey)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, registry.CodeUnauthorized, receipt.Result)
	})

	t.Run("forged signature", func(t *testing.T) {
		tx := &runtime.Transaction{Instruction: ix}
		tx.Sign(key)
		tx.Signatures[0].Signature[0] ^= 0xff
		body, _ := json.Marshal(tx)

		rec := ts.do(t, http.MethodPost, "/v1/transactions", body)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, runtime.CodeBadSignature, decode[runtime.Receipt](t, rec).Result)
	})

	t.Run("invalid capacity", func(t *testing.T) {
		bad, err := runtime.NewProviderInitialize(ts.programs, user, "too-big", domain.MaxCapacity+1)
		require.NoError(t, err)
		rec, receipt := ts.submit(t, bad, key)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, registry.CodeInvalidCapacity, receipt.Result)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/v1/transactions", []byte(`{"instruction":`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, codeBadRequest, decode[errorResponse](t, rec).Error)
	})
}

func TestOracleEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	key, user := testKey(1)
	otherKey, _ := testKey(2)

	pix, err := runtime.NewProviderInitialize(ts.programs, user, "acme", 3)
	require.NoError(t, err)
	rec, _ := ts.submit(t, pix, key)
	require.Equal(t, http.StatusOK, rec.Code)
	provider := pix.Accounts[0]

	oix, err := runtime.NewOracleInitialize(ts.programs, user, provider, "APPL/USD",
		[]domain.Attribute{{Name: "price", Value: "189.5"}})
	require.NoError(t, err)
	rec, _ = ts.submit(t, oix, key)
	require.Equal(t, http.StatusOK, rec.Code)
	oracle := oix.Accounts[0]

	update := runtime.NewOracleUpdate(ts.programs, user, oracle, provider,
		[]domain.Attribute{{Name: "price", Value: "190.25"}})
	rec, _ = ts.submit(t, update, key)
	require.Equal(t, http.StatusOK, rec.Code)

	// Another key cannot update.
	_, stranger := testKey(2)
	hostile := runtime.NewOracleUpdate(ts.programs, stranger, oracle, provider, nil)
	rec, receipt := ts.submit(t, hostile, otherKey)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, registry.CodeUnauthorized, receipt.Result)

	rec = ts.do(t, http.MethodGet, "/v1/oracles/"+oracle.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	o := decode[oracleResponse](t, rec)
	assert.Equal(t, provider, o.Provider)
	assert.Equal(t, []domain.Attribute{{Name: "price", Value: "190.25"}}, o.Attributes)

	rec = ts.do(t, http.MethodGet, "/v1/oracles/"+oracle.String()+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]revisionResponse](t, rec)
	require.Len(t, history, 2)
	assert.Equal(t, domain.RevisionUpdate, history[0].Kind)
	assert.Equal(t, domain.RevisionInitialize, history[1].Kind)
	require.NotNil(t, history[0].Signer)
	assert.Equal(t, user, *history[0].Signer)

	rec = ts.do(t, http.MethodGet, "/v1/oracles/"+oracle.String()+"/history?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]revisionResponse](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/v1/oracles/"+oracle.String()+"/history?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGet_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/v1/providers/"+domain.Pubkey{7}.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, registry.CodeProviderNotFound, decode[errorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/v1/oracles/"+domain.Pubkey{7}.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/oracles/"+domain.Pubkey{7}.String()+"/history", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/providers/not-a-key", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDerive(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/v1/derive/provider?name=acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[deriveResponse](t, rec)

	wantAddr, wantBump, err := ts.programs.ProviderAddress("acme")
	require.NoError(t, err)
	assert.Equal(t, wantAddr, got.Address)
	assert.Equal(t, wantBump, got.Bump)

	rec = ts.do(t, http.MethodGet, "/v1/derive/oracle?provider="+wantAddr.String()+"&name=APPL%2FUSD", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	oracle := decode[deriveResponse](t, rec)

	wantOracle, _, err := ts.programs.OracleAddress(wantAddr, "APPL/USD")
	require.NoError(t, err)
	assert.Equal(t, wantOracle, oracle.Address)

	rec = ts.do(t, http.MethodGet, "/v1/derive/provider", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, registry.CodeInvalidName, decode[errorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/v1/derive/oracle?provider=xyz&name=a", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, map[string]HealthCheck{
		"accounts": func(context.Context) error { return nil },
	})
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts = newTestServer(t, map[string]HealthCheck{
		"accounts": func(context.Context) error { return errors.New("connection refused") },
	})
	rec = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestInstrument_RecordsRoutePattern(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.do(t, http.MethodGet, "/v1/providers/"+domain.Pubkey{7}.String(), nil)
	ts.do(t, http.MethodGet, "/v1/providers/"+domain.Pubkey{8}.String(), nil)

	count := testutil.ToFloat64(ts.metrics.HTTPRequests.WithLabelValues("/v1/providers/{address}", "404"))
	assert.Equal(t, 2.0, count)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{registry.CodeOK, http.StatusOK},
		{registry.CodeAlreadyExists, http.StatusConflict},
		{registry.CodeOracleNotFound, http.StatusNotFound},
		{registry.CodeUnauthorized, http.StatusForbidden},
		{runtime.CodeBadSignature, http.StatusForbidden},
		{registry.CodeAccountMismatch, http.StatusBadRequest},
		{registry.CodeInvalidAttributes, http.StatusBadRequest},
		{runtime.CodeMissingAccounts, http.StatusBadRequest},
		{registry.CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.code))
		})
	}
}
