package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/tokengate/adapters/metrics"
	"github.com/artpar/tokengate/ports"
)

// SweeperService purges ledger records older than the retention horizon.
// The horizon must exceed the quota window (enforced at config load, and
// again here) or admission checks would silently lose in-window data.
type SweeperService struct {
	ledger    ports.LedgerStore
	clock     ports.Clock
	retention time.Duration
	interval  time.Duration
	logger    zerolog.Logger
	metrics   *metrics.Collector
}

// SweeperDeps contains dependencies for SweeperService.
type SweeperDeps struct {
	Ledger  ports.LedgerStore
	Clock   ports.Clock
	Metrics *metrics.Collector // optional
}

// SweeperConfig contains configuration for SweeperService.
type SweeperConfig struct {
	Retention time.Duration // how far back records are kept
	Interval  time.Duration // how often Run sweeps
	Window    time.Duration // active quota window, for the precondition check
}

// NewSweeperService creates a new retention sweeper.
func NewSweeperService(deps SweeperDeps, cfg SweeperConfig, logger zerolog.Logger) (*SweeperService, error) {
	if cfg.Retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %v", cfg.Retention)
	}
	if cfg.Retention <= cfg.Window {
		return nil, fmt.Errorf("retention %v must exceed quota window %v", cfg.Retention, cfg.Window)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &SweeperService{
		ledger:    deps.Ledger,
		clock:     deps.Clock,
		retention: cfg.Retention,
		interval:  cfg.Interval,
		logger:    logger,
		metrics:   deps.Metrics,
	}, nil
}

// Sweep removes records older than now minus the retention horizon.
func (s *SweeperService) Sweep(ctx context.Context) (int64, error) {
	horizon := s.clock.Now().Add(-s.retention)

	deleted, err := s.ledger.PurgeOlderThan(ctx, horizon)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SweepErrors.Inc()
		}
		return 0, fmt.Errorf("sweep ledger: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SweepDeleted.Add(float64(deleted))
	}
	s.logger.Info().
		Int64("deleted", deleted).
		Time("horizon", horizon).
		Msg("retention sweep complete")
	return deleted, nil
}

// Run sweeps on a timer until ctx is cancelled. Sweep failures are logged
// and the loop continues; retention is maintenance, not request traffic.
func (s *SweeperService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("retention sweep failed")
			}
		case <-ctx.Done():
			return
		}
	}
}
