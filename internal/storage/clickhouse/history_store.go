package clickhouse

import (
	"context"
	"fmt"
	"time"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/storage"
)

// HistoryStore implements storage.HistoryStore using ClickHouse.
// Rows are never updated; every committed oracle write appends one row.
type HistoryStore struct {
	conn *Conn
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(conn *Conn) *HistoryStore {
	return &HistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// Append inserts a single revision.
func (s *HistoryStore) Append(ctx context.Context, rev *domain.OracleRevision) error {
	if rev == nil || rev.Oracle.IsZero() {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO oracle_revisions (
			oracle, provider, kind, attribute_names, attribute_values,
			signer, slot, recorded_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	names, values := splitAttributes(rev.Attributes)
	recordedAt := rev.RecordedAt
	if recordedAt == 0 {
		recordedAt = time.Now().UnixMilli()
	}

	err = batch.Append(
		rev.Oracle.String(),
		rev.Provider.String(),
		string(rev.Kind),
		names,
		values,
		rev.Signer.String(),
		uint64(rev.Slot),
		uint64(recordedAt),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ListByOracle returns revisions for an oracle, newest first.
// limit <= 0 returns all revisions.
func (s *HistoryStore) ListByOracle(ctx context.Context, oracle domain.Pubkey, limit int) ([]*domain.OracleRevision, error) {
	query := `
		SELECT oracle, provider, kind, attribute_names, attribute_values,
		       signer, slot, recorded_at
		FROM oracle_revisions
		WHERE oracle = ?
		ORDER BY recorded_at DESC
	`
	args := []any{oracle.String()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	var result []*domain.OracleRevision
	for rows.Next() {
		var (
			oracleStr, providerStr, kind, signerStr string
			names, values                           []string
			slot, recordedAt                        uint64
		)
		if err := rows.Scan(&oracleStr, &providerStr, &kind, &names, &values, &signerStr, &slot, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}

		rev, err := buildRevision(oracleStr, providerStr, signerStr, names, values)
		if err != nil {
			return nil, err
		}
		rev.Kind = domain.RevisionKind(kind)
		rev.Slot = int64(slot)
		rev.RecordedAt = int64(recordedAt)
		result = append(result, rev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return result, nil
}

// splitAttributes stores attributes as two parallel arrays so ordering survives the round trip.
func splitAttributes(attrs []domain.Attribute) ([]string, []string) {
	names := make([]string, len(attrs))
	values := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
		values[i] = a.Value
	}
	return names, values
}

func buildRevision(oracleStr, providerStr, signerStr string, names, values []string) (*domain.OracleRevision, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("revision attribute arrays differ: %d names, %d values", len(names), len(values))
	}

	var (
		rev domain.OracleRevision
		err error
	)
	if rev.Oracle, err = domain.ParsePubkey(oracleStr); err != nil {
		return nil, fmt.Errorf("parse oracle: %w", err)
	}
	if rev.Provider, err = domain.ParsePubkey(providerStr); err != nil {
		return nil, fmt.Errorf("parse provider: %w", err)
	}
	if signerStr != "" {
		if rev.Signer, err = domain.ParsePubkey(signerStr); err != nil {
			return nil, fmt.Errorf("parse signer: %w", err)
		}
	}

	rev.Attributes = make([]domain.Attribute, len(names))
	for i := range names {
		rev.Attributes[i] = domain.Attribute{Name: names[i], Value: values[i]}
	}
	return &rev, nil
}
