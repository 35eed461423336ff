package quota_test

import (
	"testing"
	"time"

	"github.com/artpar/tokengate/domain/quota"
)

var (
	now    = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	policy = quota.Policy{Limit: 10000, Window: time.Hour}
)

func TestDecide_NoUsage(t *testing.T) {
	d := quota.Decide(0, time.Time{}, false, policy, now)

	if !d.Allowed {
		t.Error("expected fresh identity to be allowed")
	}
	if d.Used != 0 {
		t.Errorf("used = %d, want 0", d.Used)
	}
	if d.Limit != 10000 {
		t.Errorf("limit = %d, want 10000", d.Limit)
	}
}

func TestDecide_OneUnderLimit(t *testing.T) {
	d := quota.Decide(policy.Limit-1, now.Add(-30*time.Minute), true, policy, now)

	if !d.Allowed {
		t.Error("expected limit-1 to be allowed (strict < on pre-request sum)")
	}
}

func TestDecide_ExactlyAtLimit(t *testing.T) {
	oldest := now.Add(-30 * time.Minute)
	d := quota.Decide(policy.Limit, oldest, true, policy, now)

	if d.Allowed {
		t.Error("expected exactly-at-limit to be denied")
	}
	wantReset := oldest.Add(time.Hour)
	if !d.ResetAt.Equal(wantReset) {
		t.Errorf("resetAt = %v, want %v", d.ResetAt, wantReset)
	}
	if d.RetryAfter != 30*time.Minute {
		t.Errorf("retryAfter = %v, want 30m", d.RetryAfter)
	}
}

func TestDecide_OverLimitScenario(t *testing.T) {
	// Records [4000 @ t-3000s, 4000 @ t-1000s, 3000 @ t]; checked at t+1.
	checkAt := now.Add(time.Second)
	oldest := now.Add(-3000 * time.Second)

	d := quota.Decide(11000, oldest, true, policy, checkAt)

	if d.Allowed {
		t.Error("expected denial at 11000/10000")
	}
	wantReset := oldest.Add(time.Hour) // t + 600s
	if !d.ResetAt.Equal(wantReset) {
		t.Errorf("resetAt = %v, want %v", d.ResetAt, wantReset)
	}
	if d.RetryAfter != 599*time.Second {
		t.Errorf("retryAfter = %v, want 599s", d.RetryAfter)
	}
}

func TestDecide_DeniedWithoutOldest_FallsBackToFullWindow(t *testing.T) {
	d := quota.Decide(policy.Limit, time.Time{}, false, policy, now)

	if d.Allowed {
		t.Error("expected denial")
	}
	if !d.ResetAt.Equal(now.Add(time.Hour)) {
		t.Errorf("resetAt = %v, want now+window", d.ResetAt)
	}
}

func TestDecide_RetryAfterNeverNegative(t *testing.T) {
	// Oldest record about to leave the window: reset is in the past
	// relative to a slightly later now.
	oldest := now.Add(-time.Hour - time.Second)
	d := quota.Decide(policy.Limit, oldest, true, policy, now)

	if d.RetryAfter != 0 {
		t.Errorf("retryAfter = %v, want 0", d.RetryAfter)
	}
}

func TestDecide_Deterministic(t *testing.T) {
	oldest := now.Add(-10 * time.Minute)
	first := quota.Decide(10500, oldest, true, policy, now)
	for i := 0; i < 5; i++ {
		if got := quota.Decide(10500, oldest, true, policy, now); got != first {
			t.Fatalf("call %d: decision %+v differs from %+v", i, got, first)
		}
	}
}

func TestWindowStart(t *testing.T) {
	got := quota.WindowStart(policy, now)
	if !got.Equal(now.Add(-time.Hour)) {
		t.Errorf("windowStart = %v, want now-1h", got)
	}
}
