// Package registry implements the provider and oracle programs: address
// derivation checks, ownership authorization and the account transitions.
package registry

import (
	"context"
	"io"
	"log"
	"time"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/observability"
	"oracle-protocol/internal/pda"
	"oracle-protocol/internal/storage"
)

// Program labels used in logs and metrics.
const (
	programProvider = "provider"
	programOracle   = "oracle"
)

// Registry executes provider and oracle operations against an account store.
// It holds no mutable state of its own; the store's unique insert is the
// only synchronisation between concurrent creators.
type Registry struct {
	accounts storage.AccountStore
	history  storage.HistoryStore
	programs pda.Programs
	logger   *log.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// Options contains configuration for creating a Registry.
type Options struct {
	Accounts storage.AccountStore // required
	History  storage.HistoryStore // optional; revisions are dropped when nil
	Programs pda.Programs         // Default: pda.DefaultPrograms()
	Logger   *log.Logger
	Metrics  *observability.Metrics // Default: observability.DefaultMetrics
	Now      func() time.Time
}

// New creates a Registry.
func New(opts Options) *Registry {
	programs := opts.Programs
	if programs.Provider.IsZero() || programs.Oracle.IsZero() {
		programs = pda.DefaultPrograms()
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Registry{
		accounts: opts.Accounts,
		history:  opts.History,
		programs: programs,
		logger:   logger,
		metrics:  opts.Metrics,
		now:      now,
	}
}

// Programs returns the program IDs addresses are derived under.
func (r *Registry) Programs() pda.Programs {
	return r.programs
}

// ListRevisions returns the recorded attribute history of an oracle, newest first.
// Without a history store it returns nothing.
func (r *Registry) ListRevisions(ctx context.Context, oracle domain.Pubkey, limit int) ([]*domain.OracleRevision, error) {
	if r.history == nil {
		return nil, nil
	}
	return r.history.ListByOracle(ctx, oracle, limit)
}

// observe records the outcome of an operation. Call it deferred with a
// pointer to the named error result.
func (r *Registry) observe(program, operation string, start time.Time, errp *error) {
	code := Code(*errp)
	r.metrics.RecordOperation(program, operation, code, time.Since(start).Seconds())
	if code == CodeInternal {
		r.logger.Printf("%s %s failed: %v", program, operation, *errp)
	}
}

// recordRevision appends to the history store after a committed write.
// Failures are logged and counted; the committed account is never rolled back.
func (r *Registry) recordRevision(ctx context.Context, o *domain.Oracle, kind domain.RevisionKind, signer domain.Pubkey) {
	if r.history == nil {
		return
	}
	rev := &domain.OracleRevision{
		Oracle:     o.Address,
		Provider:   o.Provider,
		Kind:       kind,
		Attributes: domain.CloneAttributes(o.Attributes),
		Signer:     signer,
		RecordedAt: r.now().UnixMilli(),
	}
	if err := r.history.Append(ctx, rev); err != nil {
		r.metrics.RecordHistoryAppendError()
		r.logger.Printf("WARN: append %s revision for oracle %s: %v", kind, o.Address, err)
	}
}
