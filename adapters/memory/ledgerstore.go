// Package memory provides in-memory implementations of storage ports,
// used in tests and for ephemeral single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/tokengate/domain/usage"
	"github.com/artpar/tokengate/ports"
)

// LedgerStore implements ports.LedgerStore in memory.
// Safe for concurrent use.
type LedgerStore struct {
	mu      sync.RWMutex
	records map[string][]usage.Record // identity -> records, append order
}

// NewLedgerStore creates an empty in-memory ledger.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		records: make(map[string][]usage.Record),
	}
}

// Append stores one usage record.
func (s *LedgerStore) Append(ctx context.Context, rec usage.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Identity] = append(s.records[rec.Identity], rec)
	return nil
}

// SumSince returns total tokens for an identity strictly after since.
func (s *LedgerStore) SumSince(ctx context.Context, identity string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, rec := range s.records[identity] {
		if rec.OccurredAt.After(since) {
			total += rec.Tokens
		}
	}
	return total, nil
}

// OldestSince returns the earliest occurred_at strictly after since.
func (s *LedgerStore) OldestSince(ctx context.Context, identity string, since time.Time) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest time.Time
	found := false
	for _, rec := range s.records[identity] {
		if !rec.OccurredAt.After(since) {
			continue
		}
		if !found || rec.OccurredAt.Before(oldest) {
			oldest = rec.OccurredAt
			found = true
		}
	}
	return oldest, found, nil
}

// PurgeOlderThan deletes records older than horizon across all identities.
func (s *LedgerStore) PurgeOlderThan(ctx context.Context, horizon time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for identity, recs := range s.records {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.OccurredAt.Before(horizon) {
				deleted++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(s.records, identity)
		} else {
			s.records[identity] = kept
		}
	}
	return deleted, nil
}

// Count returns the number of stored records for an identity (test helper).
func (s *LedgerStore) Count(identity string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[identity])
}

// Ensure interface compliance.
var _ ports.LedgerStore = (*LedgerStore)(nil)
