// Package quota implements the sliding-window-log admission decision.
// All functions are pure - same input always produces same output. I/O
// (reading the ledger) is done by callers in app; this package only turns
// the numbers they read into a decision.
package quota

import "time"

// Policy holds the quota configuration (value type).
// Read-only after process start; changing it requires a restart.
type Policy struct {
	Limit  int64         // Tokens per window
	Window time.Duration // Trailing window duration
}

// Decision represents the outcome of an admission check (value type).
// Derived from ledger state, never persisted.
type Decision struct {
	Allowed    bool
	Used       int64 // Tokens consumed inside the trailing window
	Limit      int64
	ResetAt    time.Time // When usage will first decrease; set only on denial
	RetryAfter time.Duration
}

// WindowStart returns the left edge of the trailing window at time now.
// The window is right-open: records at exactly WindowStart are outside it.
func WindowStart(p Policy, now time.Time) time.Time {
	return now.Add(-p.Window)
}

// Decide computes the admission decision from windowed consumption.
//
// The check is a strict less-than on the sum of consumption BEFORE the
// current request: a request that would bring usage to exactly the limit
// is allowed, and its own record may push a later check over. The cost of
// the current request is unknown at admission time, so no projected total
// is ever used.
//
// oldest is the occurred_at of the oldest in-window record; hasOldest is
// false when the window holds no records (which cannot happen on denial,
// but the fallback of now+window keeps the math total).
func Decide(used int64, oldest time.Time, hasOldest bool, p Policy, now time.Time) Decision {
	d := Decision{
		Used:  used,
		Limit: p.Limit,
	}

	if used < p.Limit {
		d.Allowed = true
		return d
	}

	if hasOldest {
		d.ResetAt = oldest.Add(p.Window)
	} else {
		d.ResetAt = now.Add(p.Window)
	}
	if ra := d.ResetAt.Sub(now); ra > 0 {
		d.RetryAfter = ra
	}
	return d
}
