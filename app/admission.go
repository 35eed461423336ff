// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/tokengate/adapters/metrics"
	"github.com/artpar/tokengate/domain/identity"
	"github.com/artpar/tokengate/domain/quota"
	"github.com/artpar/tokengate/ports"
)

// AdmissionService decides whether a request may proceed under the quota.
// It owns no locking. Admission checks race against later recordings
// (check-then-act), so concurrent in-flight requests can all pass and
// collectively overshoot the limit. The quota is soft; see DESIGN.md.
type AdmissionService struct {
	ledger   ports.LedgerStore
	clock    ports.Clock
	policy   quota.Policy
	failOpen bool
	logger   zerolog.Logger
	metrics  *metrics.Collector
}

// AdmissionDeps contains dependencies for AdmissionService.
type AdmissionDeps struct {
	Ledger  ports.LedgerStore
	Clock   ports.Clock
	Metrics *metrics.Collector // optional
}

// AdmissionConfig contains configuration for AdmissionService.
type AdmissionConfig struct {
	Policy quota.Policy

	// FailOpen allows requests when the ledger cannot be read. The
	// default is fail-closed: a storage outage denies admission rather
	// than letting an unbounded number of unmetered calls through.
	FailOpen bool
}

// NewAdmissionService creates a new admission service.
func NewAdmissionService(deps AdmissionDeps, cfg AdmissionConfig, logger zerolog.Logger) (*AdmissionService, error) {
	if cfg.Policy.Limit <= 0 {
		return nil, fmt.Errorf("quota limit must be positive, got %d", cfg.Policy.Limit)
	}
	if cfg.Policy.Window <= 0 {
		return nil, fmt.Errorf("quota window must be positive, got %v", cfg.Policy.Window)
	}
	return &AdmissionService{
		ledger:   deps.Ledger,
		clock:    deps.Clock,
		policy:   cfg.Policy,
		failOpen: cfg.FailOpen,
		logger:   logger,
		metrics:  deps.Metrics,
	}, nil
}

// Policy returns the active quota policy.
func (s *AdmissionService) Policy() quota.Policy {
	return s.policy
}

// AdmitResult is the discriminated outcome of an admission check.
type AdmitResult struct {
	Allowed  bool
	Identity string // resolved quota key, for later usage recording
	Decision quota.Decision
}

// Admit resolves the client identity and evaluates its quota.
// No side effects: denial writes nothing, and approval leaves recording
// to whoever completes the metered operation.
func (s *AdmissionService) Admit(ctx context.Context, meta identity.RequestMeta) (AdmitResult, error) {
	id := identity.Resolve(meta)

	decision, err := s.Evaluate(ctx, id)
	if err != nil {
		s.countCheck("error")
		if s.failOpen {
			s.logger.Error().Err(err).Str("identity", id).
				Msg("ledger unavailable, admitting without quota check (fail-open)")
			return AdmitResult{
				Allowed:  true,
				Identity: id,
				Decision: quota.Decision{Allowed: true, Limit: s.policy.Limit},
			}, nil
		}
		s.logger.Error().Err(err).Str("identity", id).
			Msg("ledger unavailable, denying admission (fail-closed)")
		return AdmitResult{Identity: id}, err
	}

	if decision.Allowed {
		s.countCheck("allowed")
	} else {
		s.countCheck("denied")
		s.logger.Info().
			Str("identity", id).
			Int64("used", decision.Used).
			Int64("limit", decision.Limit).
			Time("reset_at", decision.ResetAt).
			Msg("request denied by quota")
	}

	return AdmitResult{Allowed: decision.Allowed, Identity: id, Decision: decision}, nil
}

// Evaluate computes the admission decision for an identity from current
// ledger state. Pure read; repeated calls without new records return
// identical decisions for the same clock reading.
func (s *AdmissionService) Evaluate(ctx context.Context, id string) (quota.Decision, error) {
	now := s.clock.Now()
	since := quota.WindowStart(s.policy, now)

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.AdmissionLatency.Observe(time.Since(start).Seconds())
		}
	}()

	used, err := s.ledger.SumSince(ctx, id, since)
	if err != nil {
		return quota.Decision{}, fmt.Errorf("evaluate quota for %s: %w", id, err)
	}

	if used < s.policy.Limit {
		return quota.Decide(used, time.Time{}, false, s.policy, now), nil
	}

	oldest, ok, err := s.ledger.OldestSince(ctx, id, since)
	if err != nil {
		return quota.Decision{}, fmt.Errorf("evaluate quota for %s: %w", id, err)
	}
	return quota.Decide(used, oldest, ok, s.policy, now), nil
}

func (s *AdmissionService) countCheck(outcome string) {
	if s.metrics != nil {
		s.metrics.AdmissionChecks.WithLabelValues(outcome).Inc()
	}
}
