package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/pda"
	"oracle-protocol/internal/storage"
)

// Provider "acme-prices" (capacity 5) publishes APPL/USD; the owner updates
// the price and a stranger's update is rejected without changing it.
func TestOracleLifecycle_ApplUsd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	p := env.createProvider(t, alice, "acme-prices", 5)
	o := env.createOracle(t, alice, p.Address, "APPL/USD", price("170.12"))

	assert.Equal(t, domain.MustParsePubkey("BwvPSeYJMznoqRPZ4v1NwzKi7vb8ZGCVaenKVCo6FRUu"), o.Address)
	assert.Equal(t, uint8(255), o.Bump)
	assert.Equal(t, p.Address, o.Provider)

	updated, err := env.reg.UpdateOracle(ctx, SignedBy(alice), o.Address, p.Address, price("179.12"))
	require.NoError(t, err)
	v, _ := updated.Attribute("price")
	assert.Equal(t, "179.12", v)

	_, err = env.reg.UpdateOracle(ctx, SignedBy(mallory), o.Address, p.Address, price("0.01"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	got, err := env.reg.GetOracle(ctx, o.Address)
	require.NoError(t, err)
	v, _ = got.Attribute("price")
	assert.Equal(t, "179.12", v)
	assert.Equal(t, "APPL/USD", got.Name)
}

func TestInitializeOracle_Rejections(t *testing.T) {
	ctx := context.Background()

	tooMany := make([]domain.Attribute, domain.MaxAttributes+1)
	for i := range tooMany {
		tooMany[i] = domain.Attribute{Name: "k", Value: "v"}
	}

	tests := []struct {
		name    string
		signer  domain.Pubkey
		oracle  string
		attrs   []domain.Attribute
		bumpOff uint8
		wantErr error
	}{
		{"stranger", mallory, "APPL/USD", price("1"), 0, ErrUnauthorized},
		{"empty name", alice, "", price("1"), 0, ErrInvalidName},
		{"long name", alice, strings.Repeat("x", 33), price("1"), 0, ErrInvalidName},
		{"too many attributes", alice, "APPL/USD", tooMany, 0, ErrInvalidAttributes},
		{"empty attribute name", alice, "APPL/USD", []domain.Attribute{{Name: "", Value: "1"}}, 0, ErrInvalidAttributes},
		{"long attribute name", alice, "APPL/USD", []domain.Attribute{{Name: strings.Repeat("n", 33), Value: "1"}}, 0, ErrInvalidAttributes},
		{"long attribute value", alice, "APPL/USD", []domain.Attribute{{Name: "price", Value: strings.Repeat("9", 33)}}, 0, ErrInvalidAttributes},
		{"non-canonical bump", alice, "APPL/USD", price("1"), 1, ErrAccountMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			p := env.createProvider(t, alice, "acme-prices", 5)

			var bump uint8
			if tt.oracle != "" && len(tt.oracle) <= domain.MaxNameLength {
				_, canonical, err := env.reg.Programs().OracleAddress(p.Address, tt.oracle)
				require.NoError(t, err)
				bump = canonical - tt.bumpOff
			}

			_, err := env.reg.InitializeOracle(ctx, SignedBy(tt.signer), p.Address, OracleParams{
				Name: tt.oracle, Attributes: tt.attrs, Bump: bump,
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 1, env.accounts.Len(), "only the provider account may exist")
		})
	}
}

func TestInitializeOracle_ProviderNotFound(t *testing.T) {
	env := newTestEnv(t)
	missing, _, err := env.reg.Programs().ProviderAddress("nobody")
	require.NoError(t, err)

	_, err = env.reg.InitializeOracle(context.Background(), SignedBy(alice), missing, OracleParams{Name: "APPL/USD"})
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestInitializeOracle_EmptyAttributes(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProvider(t, alice, "acme-prices", 5)
	o := env.createOracle(t, alice, p.Address, "EMPTY", nil)
	assert.Empty(t, o.Attributes)
}

func TestInitializeOracle_Duplicate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := env.createProvider(t, alice, "acme-prices", 5)
	o := env.createOracle(t, alice, p.Address, "APPL/USD", price("170.12"))

	_, err := env.reg.InitializeOracle(ctx, SignedBy(alice), p.Address, OracleParams{
		Name: "APPL/USD", Attributes: price("1"), Bump: o.Bump,
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, err := env.reg.GetOracle(ctx, o.Address)
	require.NoError(t, err)
	assert.Equal(t, price("170.12"), got.Attributes)
}

// The same oracle name under two providers yields two independent accounts.
func TestInitializeOracle_ScopedByProvider(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	acme := env.createProvider(t, alice, "acme-prices", 5)
	other := env.createProvider(t, mallory, "other-provider", 5)

	a := env.createOracle(t, alice, acme.Address, "APPL/USD", price("170.12"))
	b := env.createOracle(t, mallory, other.Address, "APPL/USD", price("1.00"))
	assert.NotEqual(t, a.Address, b.Address)

	_, err := env.reg.UpdateOracle(ctx, SignedBy(mallory), b.Address, other.Address, price("2.00"))
	require.NoError(t, err)

	got, err := env.reg.GetOracle(ctx, a.Address)
	require.NoError(t, err)
	assert.Equal(t, price("170.12"), got.Attributes)
}

func TestUpdateOracle_FullReplace(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := env.createProvider(t, alice, "acme-prices", 5)
	o := env.createOracle(t, alice, p.Address, "APPL/USD", []domain.Attribute{
		{Name: "price", Value: "170.12"},
		{Name: "source", Value: "nasdaq"},
	})

	next := []domain.Attribute{{Name: "bid", Value: "179.10"}, {Name: "bid", Value: "179.11"}}
	_, err := env.reg.UpdateOracle(ctx, SignedBy(alice), o.Address, p.Address, next)
	require.NoError(t, err)

	got, err := env.reg.GetOracle(ctx, o.Address)
	require.NoError(t, err)
	assert.Equal(t, next, got.Attributes, "update replaces, keeps order and duplicates")

	_, err = env.reg.UpdateOracle(ctx, SignedBy(alice), o.Address, p.Address, nil)
	require.NoError(t, err)
	got, err = env.reg.GetOracle(ctx, o.Address)
	require.NoError(t, err)
	assert.Empty(t, got.Attributes)
}

func TestUpdateOracle_FailedUpdateKeepsState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := env.createProvider(t, alice, "acme-prices", 5)
	o := env.createOracle(t, alice, p.Address, "APPL/USD", price("170.12"))

	bad := []domain.Attribute{{Name: "price", Value: strings.Repeat("1", 40)}}
	_, err := env.reg.UpdateOracle(ctx, SignedBy(alice), o.Address, p.Address, bad)
	assert.ErrorIs(t, err, ErrInvalidAttributes)

	got, err := env.reg.GetOracle(ctx, o.Address)
	require.NoError(t, err)
	assert.Equal(t, price("170.12"), got.Attributes)
}

func TestUpdateOracle_AccountSubstitution(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	acme := env.createProvider(t, alice, "acme-prices", 5)
	o := env.createOracle(t, alice, acme.Address, "APPL/USD", price("170.12"))

	// Mallory owns a provider of her own and presents it with alice's oracle.
	evil := env.createProvider(t, mallory, "evil", 1)
	_, err := env.reg.UpdateOracle(ctx, SignedBy(mallory), o.Address, evil.Address, price("0"))
	assert.ErrorIs(t, err, ErrAccountMismatch)

	// A provider account passed as the oracle.
	_, err = env.reg.UpdateOracle(ctx, SignedBy(alice), acme.Address, acme.Address, price("0"))
	assert.ErrorIs(t, err, ErrAccountMismatch)

	// Unknown oracle.
	ghost, _, err := env.reg.Programs().OracleAddress(acme.Address, "ghost")
	require.NoError(t, err)
	_, err = env.reg.UpdateOracle(ctx, SignedBy(alice), ghost, acme.Address, price("0"))
	assert.ErrorIs(t, err, ErrOracleNotFound)

	got, err := env.reg.GetOracle(ctx, o.Address)
	require.NoError(t, err)
	assert.Equal(t, price("170.12"), got.Attributes)
}

func TestOracleHistory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := env.createProvider(t, alice, "acme-prices", 5)
	o := env.createOracle(t, alice, p.Address, "APPL/USD", price("170.12"))

	_, err := env.reg.UpdateOracle(ctx, SignedBy(alice), o.Address, p.Address, price("179.12"))
	require.NoError(t, err)
	_, err = env.reg.UpdateOracle(ctx, SignedBy(mallory), o.Address, p.Address, price("0"))
	require.Error(t, err)

	revs, err := env.reg.ListRevisions(ctx, o.Address, 0)
	require.NoError(t, err)
	require.Len(t, revs, 2, "rejected updates leave no revision")

	assert.Equal(t, domain.RevisionUpdate, revs[0].Kind)
	assert.Equal(t, price("179.12"), revs[0].Attributes)
	assert.Equal(t, alice, revs[0].Signer)
	assert.Equal(t, domain.RevisionInitialize, revs[1].Kind)
	assert.Equal(t, price("170.12"), revs[1].Attributes)
}

type failingHistory struct{}

func (failingHistory) Append(context.Context, *domain.OracleRevision) error {
	return errors.New("history unavailable")
}

func (failingHistory) ListByOracle(context.Context, domain.Pubkey, int) ([]*domain.OracleRevision, error) {
	return nil, errors.New("history unavailable")
}

var _ storage.HistoryStore = failingHistory{}

func TestOracleHistory_AppendFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.reg = New(Options{Accounts: env.accounts, History: failingHistory{}, Metrics: env.metrics})

	p := env.createProvider(t, alice, "acme-prices", 5)
	o := env.createOracle(t, alice, p.Address, "APPL/USD", price("170.12"))

	got, err := env.reg.GetOracle(ctx, o.Address)
	require.NoError(t, err)
	assert.Equal(t, price("170.12"), got.Attributes)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.HistoryAppendErrors))
}

func TestListRevisions_NoHistoryStore(t *testing.T) {
	reg := New(Options{Accounts: nil, Programs: pda.DefaultPrograms()})
	revs, err := reg.ListRevisions(context.Background(), domain.Pubkey{1}, 10)
	require.NoError(t, err)
	assert.Nil(t, revs)
}

func TestOperationMetrics(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := env.createProvider(t, alice, "acme-prices", 5)
	o := env.createOracle(t, alice, p.Address, "APPL/USD", price("1"))

	_, err := env.reg.UpdateOracle(ctx, SignedBy(mallory), o.Address, p.Address, price("2"))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Operations.WithLabelValues("oracle", "initialize", CodeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Operations.WithLabelValues("oracle", "update", CodeUnauthorized)))
}
