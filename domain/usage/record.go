// Package usage provides the usage ledger record type.
// Records are immutable value types created once per completed
// metered operation.
package usage

import (
	"errors"
	"time"
)

// Record represents one measured unit of consumption (immutable value type).
// It is created after the metered operation completes, with the token count
// the upstream actually reported - never an up-front estimate.
type Record struct {
	ID         string
	Identity   string // Quota key (resolved client identity)
	Tokens     int64  // Actual tokens consumed
	Model      string // Resource class, e.g. "gpt-4o-mini"
	Endpoint   string // API endpoint that triggered the call
	OccurredAt time.Time
}

// Validation errors.
var (
	ErrEmptyIdentity  = errors.New("usage: identity is empty")
	ErrNegativeTokens = errors.New("usage: token count is negative")
	ErrZeroTime       = errors.New("usage: occurred_at is zero")
)

// New creates a validated usage record.
func New(id, identity string, tokens int64, model, endpoint string, occurredAt time.Time) (Record, error) {
	r := Record{
		ID:         id,
		Identity:   identity,
		Tokens:     tokens,
		Model:      model,
		Endpoint:   endpoint,
		OccurredAt: occurredAt,
	}
	return r, r.Validate()
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if r.Identity == "" {
		return ErrEmptyIdentity
	}
	if r.Tokens < 0 {
		return ErrNegativeTokens
	}
	if r.OccurredAt.IsZero() {
		return ErrZeroTime
	}
	return nil
}
