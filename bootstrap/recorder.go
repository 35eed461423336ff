package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/tokengate/adapters/metrics"
	"github.com/artpar/tokengate/domain/usage"
	"github.com/artpar/tokengate/ports"
)

// BufferedRecorder buffers usage records and writes them in batches to
// the ledger. Persistence is best-effort: a failed append is logged and
// counted, never propagated back to the request that produced it.
type BufferedRecorder struct {
	ledger        ports.LedgerStore
	logger        zerolog.Logger
	metrics       *metrics.Collector
	buffer        []usage.Record
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// NewBufferedRecorder creates a recorder flushing every flushInterval or
// once batchSize records are queued, whichever comes first.
func NewBufferedRecorder(ledger ports.LedgerStore, batchSize int, flushInterval time.Duration, logger zerolog.Logger, m *metrics.Collector) *BufferedRecorder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}

	r := &BufferedRecorder{
		ledger:        ledger,
		logger:        logger,
		metrics:       m,
		buffer:        make([]usage.Record, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}

	r.wg.Add(1)
	go r.flushLoop()

	return r
}

// Record queues a usage record. When the buffer reaches batchSize the
// batch is handed to a background write so the caller never blocks on
// ledger I/O.
func (r *BufferedRecorder) Record(rec usage.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, rec)

	if len(r.buffer) >= r.batchSize {
		batch := r.takeLocked()
		// Tracked by the WaitGroup so Close waits out in-flight batch
		// writes before the ledger behind them is torn down.
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			r.writeBatch(ctx, batch)
		}()
	}
}

// Flush writes all queued records before returning. The synchronous
// variant exists so handlers and tests can pin down exactly when usage
// becomes visible to admission checks.
func (r *BufferedRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.takeLocked()
	r.mu.Unlock()

	r.writeBatch(ctx, batch)
	return nil
}

// takeLocked detaches the current buffer. Callers hold r.mu.
func (r *BufferedRecorder) takeLocked() []usage.Record {
	if len(r.buffer) == 0 {
		return nil
	}
	batch := make([]usage.Record, len(r.buffer))
	copy(batch, r.buffer)
	r.buffer = r.buffer[:0]
	return batch
}

func (r *BufferedRecorder) writeBatch(ctx context.Context, batch []usage.Record) {
	for _, rec := range batch {
		if err := r.ledger.Append(ctx, rec); err != nil {
			if r.metrics != nil {
				r.metrics.RecordingFailures.Inc()
			}
			r.logger.Error().Err(err).
				Str("identity", rec.Identity).
				Int64("tokens", rec.Tokens).
				Msg("usage record lost")
			continue
		}
		if r.metrics != nil {
			r.metrics.TokensRecorded.WithLabelValues(rec.Model).Add(float64(rec.Tokens))
		}
	}
}

func (r *BufferedRecorder) flushLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Flush(context.Background())
		case <-r.stopCh:
			return
		}
	}
}

// Close stops the recorder and flushes remaining records.
func (r *BufferedRecorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		r.Flush(ctx)
	})
	return nil
}

var _ ports.UsageRecorder = (*BufferedRecorder)(nil)
