package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/artpar/tokengate/domain/usage"
	"github.com/artpar/tokengate/ports"
)

// LedgerStore implements ports.LedgerStore using SQLite.
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a new SQLite ledger store.
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Append stores one immutable usage record.
func (s *LedgerStore) Append(ctx context.Context, rec usage.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (id, identity, tokens, model, endpoint, occurred_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Identity, rec.Tokens, rec.Model, rec.Endpoint, rec.OccurredAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: append usage record: %v", ports.ErrStorageUnavailable, err)
	}
	return nil
}

// SumSince returns total tokens for an identity strictly after since.
// Unknown identities yield 0.
func (s *LedgerStore) SumSince(ctx context.Context, identity string, since time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(tokens), 0)
		FROM usage_records
		WHERE identity = ? AND occurred_at_ns > ?
	`, identity, since.UnixNano()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("%w: sum usage: %v", ports.ErrStorageUnavailable, err)
	}
	return total, nil
}

// OldestSince returns the earliest occurred_at strictly after since.
func (s *LedgerStore) OldestSince(ctx context.Context, identity string, since time.Time) (time.Time, bool, error) {
	var ns int64
	err := s.db.QueryRowContext(ctx, `
		SELECT occurred_at_ns
		FROM usage_records
		WHERE identity = ? AND occurred_at_ns > ?
		ORDER BY occurred_at_ns ASC
		LIMIT 1
	`, identity, since.UnixNano()).Scan(&ns)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: oldest usage: %v", ports.ErrStorageUnavailable, err)
	}
	return time.Unix(0, ns).UTC(), true, nil
}

// PurgeOlderThan deletes records with occurred_at before horizon.
func (s *LedgerStore) PurgeOlderThan(ctx context.Context, horizon time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM usage_records WHERE occurred_at_ns < ?
	`, horizon.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("%w: purge usage: %v", ports.ErrStorageUnavailable, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: purge usage: %v", ports.ErrStorageUnavailable, err)
	}
	return deleted, nil
}

// Ensure interface compliance.
var _ ports.LedgerStore = (*LedgerStore)(nil)
