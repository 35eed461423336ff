package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/tokengate/adapters/sqlite"
	"github.com/artpar/tokengate/domain/usage"
)

var base = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "tokengate.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustAppend(t *testing.T, s *sqlite.LedgerStore, id, identity string, tokens int64, at time.Time) {
	t.Helper()
	rec, err := usage.New(id, identity, tokens, "gpt-4o-mini", "/v1/complete", at)
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestLedgerStore_AppendAndSum(t *testing.T) {
	s := sqlite.NewLedgerStore(openTestDB(t))

	mustAppend(t, s, "r1", "a", 4000, base.Add(-50*time.Minute))
	mustAppend(t, s, "r2", "a", 4000, base.Add(-16*time.Minute))
	mustAppend(t, s, "r3", "b", 9999, base.Add(-5*time.Minute))

	total, err := s.SumSince(context.Background(), "a", base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if total != 8000 {
		t.Errorf("sum = %d, want 8000", total)
	}
}

func TestLedgerStore_SumSince_UnknownIdentity(t *testing.T) {
	s := sqlite.NewLedgerStore(openTestDB(t))

	total, err := s.SumSince(context.Background(), "nobody", base)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if total != 0 {
		t.Errorf("sum = %d, want 0", total)
	}
}

func TestLedgerStore_SumSince_StrictBoundary(t *testing.T) {
	s := sqlite.NewLedgerStore(openTestDB(t))
	since := base.Add(-time.Hour)

	mustAppend(t, s, "edge", "a", 100, since)
	mustAppend(t, s, "in", "a", 200, since.Add(time.Nanosecond))

	total, err := s.SumSince(context.Background(), "a", since)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if total != 200 {
		t.Errorf("sum = %d, want 200 (record at the window edge excluded)", total)
	}
}

func TestLedgerStore_OldestSince(t *testing.T) {
	s := sqlite.NewLedgerStore(openTestDB(t))
	since := base.Add(-time.Hour)

	mustAppend(t, s, "r1", "a", 10, base.Add(-10*time.Minute))
	mustAppend(t, s, "r2", "a", 10, base.Add(-50*time.Minute))
	mustAppend(t, s, "r3", "a", 10, since) // at edge, excluded
	mustAppend(t, s, "r4", "b", 10, base.Add(-59*time.Minute))

	oldest, ok, err := s.OldestSince(context.Background(), "a", since)
	if err != nil {
		t.Fatalf("oldest: %v", err)
	}
	if !ok {
		t.Fatal("expected a qualifying record")
	}
	if want := base.Add(-50 * time.Minute); !oldest.Equal(want) {
		t.Errorf("oldest = %v, want %v", oldest, want)
	}
}

func TestLedgerStore_OldestSince_NoRows(t *testing.T) {
	s := sqlite.NewLedgerStore(openTestDB(t))

	_, ok, err := s.OldestSince(context.Background(), "a", base)
	if err != nil {
		t.Fatalf("oldest: %v", err)
	}
	if ok {
		t.Error("expected ok=false with no rows")
	}
}

func TestLedgerStore_PurgeOlderThan(t *testing.T) {
	s := sqlite.NewLedgerStore(openTestDB(t))
	horizon := base.Add(-72 * time.Hour)

	mustAppend(t, s, "old1", "a", 10, horizon.Add(-time.Hour))
	mustAppend(t, s, "old2", "b", 10, horizon.Add(-time.Minute))
	mustAppend(t, s, "edge", "a", 10, horizon) // not strictly older, kept
	mustAppend(t, s, "new", "a", 10, base)

	deleted, err := s.PurgeOlderThan(context.Background(), horizon)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	// Remaining rows still sum correctly for a wide-open window.
	total, _ := s.SumSince(context.Background(), "a", horizon.Add(-time.Hour))
	if total != 20 {
		t.Errorf("sum after purge = %d, want 20", total)
	}
}

func TestLedgerStore_Append_RejectsInvalid(t *testing.T) {
	s := sqlite.NewLedgerStore(openTestDB(t))

	err := s.Append(context.Background(), usage.Record{ID: "x", Identity: "", Tokens: 1, OccurredAt: base})
	if err == nil {
		t.Error("expected validation error for empty identity")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
