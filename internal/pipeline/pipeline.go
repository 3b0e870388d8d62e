// Package pipeline owns per-subscriber processing: a subscription's intake
// queue feeds a deduplicator, which feeds the aggregators and the event log.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/paystream/internal/aggregate"
	"github.com/gyaneshwarpardhi/paystream/internal/dedup"
	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/eventlog"
	"github.com/gyaneshwarpardhi/paystream/internal/filter"
	"github.com/gyaneshwarpardhi/paystream/internal/metrics"
	"github.com/gyaneshwarpardhi/paystream/internal/store"
	"github.com/gyaneshwarpardhi/paystream/internal/stream"
)

// Options sizes and configures a Pipeline.
type Options struct {
	QueueCapacity int
	DedupCapacity int
	LogCapacity   int
	Location      *time.Location
	Clock         func() time.Time
	Filter        *filter.Filter
	Paused        bool
}

// Info is a point-in-time description of a pipeline.
type Info struct {
	ID        string    `json:"id"`
	Filter    string    `json:"filter,omitempty"`
	Paused    bool      `json:"paused"`
	Pending   int       `json:"pending"`
	Dropped   uint64    `json:"dropped"`
	Delivered uint64    `json:"delivered"`
	Tenants   []string  `json:"tenants"`
	CreatedAt time.Time `json:"created_at"`
}

// Pipeline processes the events of one subscription. Its handler runs on the
// subscription's single worker, so state changes are serial; the lock lets
// readers take consistent snapshots while that worker runs.
type Pipeline struct {
	id      string
	filter  *filter.Filter
	sub     *stream.Subscription
	created time.Time

	mu     sync.RWMutex
	dedup  *dedup.Cache
	agg    *aggregate.Aggregator
	logs   map[string]*eventlog.Log
	logCap int
}

// New subscribes a pipeline to ch.
func New(ch *stream.Channel, id string, opts Options) *Pipeline {
	p := &Pipeline{
		id:      id,
		filter:  opts.Filter,
		created: time.Now(),
		dedup:   dedup.New(opts.DedupCapacity),
		agg:     aggregate.New(opts.Location, opts.Clock),
		logs:    make(map[string]*eventlog.Log),
		logCap:  opts.LogCapacity,
	}
	subOpts := []stream.Option{
		stream.WithName(id),
		stream.WithCapacity(opts.QueueCapacity),
		stream.WithHandler(p.handle),
	}
	if opts.Filter != nil {
		subOpts = append(subOpts, stream.WithFilter(opts.Filter.Match))
	}
	if opts.Paused {
		subOpts = append(subOpts, stream.Paused())
	}
	p.sub = ch.Subscribe(subOpts...)
	return p
}

func (p *Pipeline) handle(ev *event.Event) {
	start := time.Now()

	p.mu.Lock()
	if !p.dedup.Admit(ev.ID) {
		p.mu.Unlock()
		metrics.DuplicatesAbsorbed.Inc()
		slog.Debug("duplicate absorbed", "pipeline", p.id, "id", ev.ID)
		return
	}
	p.agg.Apply(ev)
	p.log(ev.TenantID).Append(ev)
	p.mu.Unlock()

	metrics.EventsApplied.Inc()
	metrics.ApplyDuration.Observe(float64(time.Since(start).Microseconds()))
}

// log must be called with p.mu held for writing.
func (p *Pipeline) log(tenant string) *eventlog.Log {
	l, ok := p.logs[tenant]
	if !ok {
		l = eventlog.New(p.logCap)
		p.logs[tenant] = l
	}
	return l
}

// ID returns the pipeline name.
func (p *Pipeline) ID() string { return p.id }

// Pause holds arriving events in the intake queue.
func (p *Pipeline) Pause() {
	p.sub.Pause()
	slog.Info("pipeline paused", "pipeline", p.id)
}

// Resume applies the held backlog in arrival order, then continues live.
func (p *Pipeline) Resume() {
	backlog := p.sub.Pending()
	p.sub.Resume()
	slog.Info("pipeline resumed", "pipeline", p.id, "backlog", backlog)
}

// Paused reports whether the pipeline is paused.
func (p *Pipeline) Paused() bool { return p.sub.IsPaused() }

// Sync waits until every queued event has been applied, or the pipeline is paused.
func (p *Pipeline) Sync() { p.sub.Sync() }

// Metrics returns the tenant's running metrics together with the most
// frequent category in its event log.
func (p *Pipeline) Metrics(tenant string) aggregate.Metrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m := p.agg.Snapshot(tenant)
	if l, ok := p.logs[tenant]; ok {
		m.TopCategory = l.TopCategory()
	}
	return m
}

// Trends slides the tenant's windows to now and returns one of them.
func (p *Pipeline) Trends(tenant string, period aggregate.Period) []aggregate.TrendBucket {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agg.Tick(tenant)
	return p.agg.Trends(tenant, period)
}

// Page returns one page of the tenant's event log, newest first.
func (p *Pipeline) Page(tenant string, page, size int) ([]*event.Event, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	l, ok := p.logs[tenant]
	if !ok {
		return []*event.Event{}, 0
	}
	return l.Page(page, size)
}

// Export returns the tenant's whole retained log, newest first.
func (p *Pipeline) Export(tenant string) []*event.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	l, ok := p.logs[tenant]
	if !ok {
		return []*event.Event{}
	}
	return l.ExportAll()
}

// Reset clears the tenant's aggregates and log. Identifiers already seen
// stay in the deduplicator.
func (p *Pipeline) Reset(tenant string) {
	p.mu.Lock()
	p.agg.Reset(tenant)
	delete(p.logs, tenant)
	p.mu.Unlock()
	slog.Info("pipeline tenant reset", "pipeline", p.id, "tenant", tenant)
}

// Warm fills the tenant's event log from the store's most recent events and
// marks them as seen. Aggregates are not backfilled.
func (p *Pipeline) Warm(ctx context.Context, st store.Store, tenant string) error {
	p.mu.RLock()
	limit := eventlog.DefaultCapacity
	if p.logCap > 0 {
		limit = p.logCap
	}
	p.mu.RUnlock()

	recent, err := st.Recent(ctx, tenant, limit)
	if err != nil {
		return fmt.Errorf("pipeline %s: warm %s: %w", p.id, tenant, err)
	}
	if p.filter != nil {
		kept := recent[:0:0]
		for _, ev := range recent {
			if p.filter.Match(ev) {
				kept = append(kept, ev)
			}
		}
		recent = kept
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Oldest first so eviction order in the deduplicator follows event age.
	for i := len(recent) - 1; i >= 0; i-- {
		p.dedup.Admit(recent[i].ID)
	}
	p.log(tenant).Load(recent)
	slog.Debug("pipeline warmed", "pipeline", p.id, "tenant", tenant, "events", len(recent))
	return nil
}

// Info describes the pipeline.
func (p *Pipeline) Info() Info {
	p.mu.RLock()
	tenants := make([]string, 0, len(p.logs))
	for t := range p.logs {
		tenants = append(tenants, t)
	}
	p.mu.RUnlock()
	sort.Strings(tenants)

	return Info{
		ID:        p.id,
		Filter:    p.filter.String(),
		Paused:    p.sub.IsPaused(),
		Pending:   p.sub.Pending(),
		Dropped:   p.sub.Dropped(),
		Delivered: p.sub.Delivered(),
		Tenants:   tenants,
		CreatedAt: p.created,
	}
}

// Close unsubscribes the pipeline. Queued events are discarded.
func (p *Pipeline) Close() {
	p.sub.Close()
}
