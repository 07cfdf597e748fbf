package feed

import (
	"context"
	"io"
	"log"
	"slices"
	"time"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/observability"
	"oracle-protocol/internal/pda"
	"oracle-protocol/internal/solana"
	"oracle-protocol/internal/storage"
)

// OracleUpdate is one decoded change of a watched oracle account.
// Err is set when the account could not be decoded or was closed.
type OracleUpdate struct {
	Oracle *domain.Oracle
	Slot   int64
	Err    error
}

// Watcher streams decoded oracle updates from account subscriptions.
type Watcher struct {
	ws       solana.WSClient
	history  storage.HistoryStore
	programs pda.Programs
	logger   *log.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// WatcherOptions contains configuration for creating a Watcher.
type WatcherOptions struct {
	WS       solana.WSClient      // required
	History  storage.HistoryStore // optional; observed revisions are appended when set
	Programs pda.Programs         // Default: pda.DefaultPrograms()
	Logger   *log.Logger
	Metrics  *observability.Metrics
	Now      func() time.Time
}

// NewWatcher creates a Watcher.
func NewWatcher(opts WatcherOptions) *Watcher {
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

	return &Watcher{
		ws:       opts.WS,
		history:  opts.History,
		programs: programs,
		logger:   logger,
		metrics:  opts.Metrics,
		now:      now,
	}
}

// Watch subscribes to the oracle at address. The returned channel is closed
// when ctx is done or the subscription ends. Consecutive notifications that
// carry an unchanged attribute set are emitted once.
func (w *Watcher) Watch(ctx context.Context, address domain.Pubkey) (<-chan OracleUpdate, error) {
	notifications, err := w.ws.SubscribeAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	w.logger.Printf("watching oracle %s", address)

	out := make(chan OracleUpdate, 16)
	go func() {
		defer close(out)

		var last *domain.Oracle
		for {
			select {
			case <-ctx.Done():
				return
			case notif, ok := <-notifications:
				if !ok {
					w.logger.Printf("subscription for %s closed", address)
					return
				}

				update := w.decode(notif)
				if update.Err == nil {
					if last != nil && sameRevision(last, update.Oracle) {
						continue
					}
					last = update.Oracle
					w.record(ctx, update)
				} else {
					w.logger.Printf("WARN: oracle %s at slot %d: %v", address, notif.Slot, update.Err)
				}

				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (w *Watcher) decode(notif solana.AccountNotification) OracleUpdate {
	update := OracleUpdate{Slot: notif.Slot, Err: notif.Err}
	if update.Err != nil {
		return update
	}
	update.Oracle, update.Err = decodeOracle(w.programs, notif.Address, notif.Account)
	return update
}

// record appends an observed revision. Failures are logged, never surfaced.
func (w *Watcher) record(ctx context.Context, update OracleUpdate) {
	if w.history == nil {
		return
	}

	o := update.Oracle
	rev := &domain.OracleRevision{
		Oracle:     o.Address,
		Provider:   o.Provider,
		Kind:       domain.RevisionObserved,
		Attributes: domain.CloneAttributes(o.Attributes),
		Slot:       update.Slot,
		RecordedAt: w.now().UnixMilli(),
	}
	if err := w.history.Append(ctx, rev); err != nil {
		w.metrics.RecordHistoryAppendError()
		w.logger.Printf("WARN: append observed revision of %s: %v", o.Address, err)
	}
}

func sameRevision(a, b *domain.Oracle) bool {
	return a.Provider == b.Provider && slices.Equal(a.Attributes, b.Attributes)
}
