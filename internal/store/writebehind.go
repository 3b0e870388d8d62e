package store

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/metrics"
)

// WriteBehindOptions tunes a WriteBehind sink.
type WriteBehindOptions struct {
	Workers        int
	QueueSize      int
	RetryAttempts  int
	RetryPerSecond float64
}

// WriteBehind persists live events asynchronously. Submit never blocks the
// caller: when the queue is full the event is dropped and counted, and a write
// that still fails after its retries is logged and counted.
type WriteBehind struct {
	store    Store
	pool     *workerPool[*event.Event]
	limiter  *rate.Limiter
	attempts int
	cancel   context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewWriteBehind starts the sink's workers.
func NewWriteBehind(st Store, opts WriteBehindOptions) *WriteBehind {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1024
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.RetryPerSecond <= 0 {
		opts.RetryPerSecond = 5
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &WriteBehind{
		store:    st,
		limiter:  rate.NewLimiter(rate.Limit(opts.RetryPerSecond), 1),
		attempts: opts.RetryAttempts,
		cancel:   cancel,
	}
	w.pool = newWorkerPool(ctx, opts.Workers, opts.QueueSize, w.write)
	return w
}

// Submit queues ev for persistence and reports whether it was accepted.
func (w *WriteBehind) Submit(ev *event.Event) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	if w.pool.submit(ev) {
		return true
	}
	metrics.OverflowDrops.WithLabelValues(metrics.ComponentSink).Inc()
	slog.Warn("write-behind queue full, event not persisted", "id", ev.ID, "tenant", ev.TenantID)
	return false
}

// Pending returns the number of queued writes.
func (w *WriteBehind) Pending() int { return w.pool.queueLen() }

// Utilization returns the queue fill ratio between 0 and 1.
func (w *WriteBehind) Utilization() float64 {
	return float64(w.pool.queueLen()) / float64(w.pool.queueCap())
}

// Close flushes queued writes and stops the workers. It is safe to call more than once.
func (w *WriteBehind) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.pool.drain()
	w.cancel()
}

func (w *WriteBehind) write(ctx context.Context, ev *event.Event) {
	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if attempt > 1 {
			if werr := w.limiter.Wait(ctx); werr != nil {
				break
			}
		}
		if err = w.store.Write(ctx, ev); err == nil {
			metrics.SinkWrites.WithLabelValues("ok").Inc()
			return
		}
		slog.Debug("store write failed", "id", ev.ID, "attempt", attempt, "err", err)
	}
	metrics.SinkWrites.WithLabelValues("failed").Inc()
	slog.Warn("store write dropped after retries", "id", ev.ID, "tenant", ev.TenantID, "attempts", w.attempts, "err", err)
}
