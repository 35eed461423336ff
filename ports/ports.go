// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/tokengate/domain/usage"
)

// ErrStorageUnavailable classifies ledger I/O failures. Adapters wrap
// their driver errors with it so callers can pick a fail-open or
// fail-closed policy without knowing the backend.
var ErrStorageUnavailable = errors.New("storage unavailable")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Ledger Port
// -----------------------------------------------------------------------------

// LedgerStore persists the append-only usage ledger.
//
// All queries are keyed by (identity, occurred_at); implementations must
// index that pair, since every admission check runs a windowed range query.
// SumSince and OldestSince are strict (occurred_at > since): the trailing
// window is right-open, so a record exactly at the window edge is outside it.
type LedgerStore interface {
	// Append stores one immutable usage record.
	Append(ctx context.Context, rec usage.Record) error

	// SumSince returns total tokens for an identity after since.
	// Unknown identities yield 0, not an error.
	SumSince(ctx context.Context, identity string, since time.Time) (int64, error)

	// OldestSince returns the earliest occurred_at after since for an
	// identity. ok is false when no records qualify.
	OldestSince(ctx context.Context, identity string, since time.Time) (oldest time.Time, ok bool, err error)

	// PurgeOlderThan deletes records with occurred_at before horizon,
	// across all identities. Used only by the retention sweeper.
	PurgeOlderThan(ctx context.Context, horizon time.Time) (int64, error)
}

// -----------------------------------------------------------------------------
// Event Ports
// -----------------------------------------------------------------------------

// UsageRecorder accepts usage records for async, best-effort persistence.
// Recording failure must never surface to the request that produced the
// record; implementations log and move on.
type UsageRecorder interface {
	// Record queues a usage record. Non-blocking.
	Record(rec usage.Record)

	// Flush writes queued records now.
	Flush(ctx context.Context) error

	// Close stops the recorder and flushes remaining records.
	Close() error
}

// -----------------------------------------------------------------------------
// Upstream Port
// -----------------------------------------------------------------------------

// CompletionRequest is the input to the metered upstream model call.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// CompletionResult is the upstream's response, including the measured
// consumption that the recorder will bill.
type CompletionResult struct {
	Content    string
	Model      string
	TokensUsed int64
	LatencyMs  int64
}

// ModelCaller performs the metered upstream operation. If the call is
// cancelled or fails, no consumption is reported and nothing is billed.
type ModelCaller interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}
