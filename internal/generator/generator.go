// Package generator simulates payment traffic and bulk-seeds historical data.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/paystream/internal/config"
	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/metrics"
	"github.com/gyaneshwarpardhi/paystream/internal/store"
	"github.com/gyaneshwarpardhi/paystream/internal/stream"
)

// Sink receives live events for persistence without blocking.
type Sink interface {
	Submit(ev *event.Event) bool
}

// Options wires a Generator's collaborators. Store and Publisher are required.
type Options struct {
	Store     store.Store
	Sink      Sink
	Publisher stream.Publisher
	// Rand defaults to a time-seeded PCG source.
	Rand  *rand.Rand
	Clock func() time.Time
}

// SeedResult reports the outcome of Seed or Reseed.
type SeedResult struct {
	Message     string `json:"message"`
	Count       int    `json:"count"`
	AmountRange string `json:"amount_range"`
}

// Generator produces simulated payments on a schedule and seeds the store.
// Tick is the unit of work; Start runs it on a ticker until Stop.
type Generator struct {
	mu    sync.Mutex
	cfg   config.GeneratorConf
	rng   *rand.Rand
	next  int
	clock func() time.Time

	store store.Store
	sink  Sink
	pub   stream.Publisher

	onReset []func(tenant string)

	interval  chan time.Duration
	stop      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a stopped Generator.
func New(cfg config.GeneratorConf, opts Options) *Generator {
	rng := opts.Rand
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Generator{
		cfg:      cfg,
		rng:      rng,
		clock:    clock,
		store:    opts.Store,
		sink:     opts.Sink,
		pub:      opts.Publisher,
		interval: make(chan time.Duration, 1),
		stop:     make(chan struct{}),
	}
}

// OnReset registers fn to run after Reseed clears a tenant.
func (g *Generator) OnReset(fn func(tenant string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onReset = append(g.onReset, fn)
}

// Configure swaps in a new generator config. A running ticker picks up a
// changed interval.
func (g *Generator) Configure(cfg config.GeneratorConf) {
	g.mu.Lock()
	changed := cfg.IntervalMs != g.cfg.IntervalMs
	g.cfg = cfg
	if g.next >= len(cfg.Categories) {
		g.next = 0
	}
	g.mu.Unlock()

	if changed {
		select {
		case <-g.interval:
		default:
		}
		g.interval <- cfg.Interval()
	}
}

// Next builds the next live event: categories in round-robin order, outcome
// drawn uniformly from the configured outcome list.
func (g *Generator) Next() *event.Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	category := g.cfg.Categories[g.next%len(g.cfg.Categories)]
	g.next = (g.next + 1) % len(g.cfg.Categories)
	return g.build(g.cfg.Tenant, category, g.clock())
}

// build must be called with g.mu held.
func (g *Generator) build(tenant, category string, at time.Time) *event.Event {
	outcome := event.Outcome(g.cfg.Outcomes[g.rng.IntN(len(g.cfg.Outcomes))])
	amount := g.cfg.AmountMin
	if span := g.cfg.AmountMax - g.cfg.AmountMin; span > 0 {
		amount += g.rng.Int64N(span + 1)
	}
	return &event.Event{
		ID:         uuid.NewString(),
		TenantID:   tenant,
		Kind:       event.KindFor(outcome),
		Amount:     decimal.NewFromInt(amount),
		Category:   category,
		Outcome:    outcome,
		OccurredAt: at,
	}
}

// Tick produces one live event, hands it to the sink and publishes it.
func (g *Generator) Tick(ctx context.Context) *event.Event {
	ev := g.Next()
	if g.sink != nil {
		g.sink.Submit(ev)
	}
	g.pub.Publish(ev)
	metrics.GeneratorTicks.Inc()
	metrics.EventsIngested.WithLabelValues("generator").Inc()
	slog.Debug("generated payment", "id", ev.ID, "tenant", ev.TenantID, "category", ev.Category, "outcome", ev.Outcome)
	return ev
}

// Start runs Tick on the configured interval until Stop or ctx is done.
func (g *Generator) Start(ctx context.Context) {
	if g == nil {
		return
	}
	g.startOnce.Do(func() {
		g.mu.Lock()
		every := g.cfg.Interval()
		g.mu.Unlock()
		if every <= 0 {
			every = 2 * time.Second
		}

		g.wg.Add(1)
		go g.run(ctx, every)
	})
}

// Stop halts the ticker and waits for the running tick to finish.
func (g *Generator) Stop() {
	if g == nil {
		return
	}
	g.stopOnce.Do(func() {
		close(g.stop)
		g.wg.Wait()
	})
}

func (g *Generator) run(ctx context.Context, every time.Duration) {
	defer g.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.stop:
			return
		case d := <-g.interval:
			if d > 0 {
				ticker.Reset(d)
			}
		case <-ticker.C:
			g.Tick(ctx)
		}
	}
}

// Seed inserts a back-dated batch for tenant unless the store already holds
// events for it, in which case it returns the existing count.
func (g *Generator) Seed(ctx context.Context, tenant string) (SeedResult, error) {
	n, err := g.store.Count(ctx, tenant)
	if err != nil {
		return SeedResult{}, fmt.Errorf("seed %s: %w", tenant, err)
	}
	if n > 0 {
		return SeedResult{
			Message:     "store already seeded",
			Count:       n,
			AmountRange: g.amountRange(),
		}, nil
	}
	return g.insertBatch(ctx, tenant, "seeded payments")
}

// Reseed deletes every stored event of tenant, inserts a fresh batch and
// notifies OnReset callbacks so derived aggregates can be cleared.
func (g *Generator) Reseed(ctx context.Context, tenant string) (SeedResult, error) {
	if err := g.store.Clear(ctx, tenant); err != nil {
		return SeedResult{}, fmt.Errorf("reseed %s: %w", tenant, err)
	}
	g.mu.Lock()
	callbacks := make([]func(string), len(g.onReset))
	copy(callbacks, g.onReset)
	g.mu.Unlock()
	for _, fn := range callbacks {
		fn(tenant)
	}

	res, err := g.insertBatch(ctx, tenant, "cleared and reseeded payments")
	if err != nil {
		return SeedResult{}, err
	}
	slog.Info("tenant reseeded", "tenant", tenant, "count", res.Count)
	return res, nil
}

func (g *Generator) insertBatch(ctx context.Context, tenant, msg string) (SeedResult, error) {
	evs := g.Batch(tenant)
	n, err := g.store.BulkInsert(ctx, evs)
	if err != nil {
		return SeedResult{}, fmt.Errorf("seed %s: bulk insert: %w", tenant, err)
	}
	metrics.EventsIngested.WithLabelValues("seed").Add(float64(n))
	return SeedResult{Message: msg, Count: n, AmountRange: g.amountRange()}, nil
}

// Batch builds SeedCount events for tenant with random categories, each
// back-dated by a whole number of days and hours inside the seed window.
func (g *Generator) Batch(tenant string) []*event.Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	evs := make([]*event.Event, g.cfg.SeedCount)
	for i := range evs {
		daysAgo := g.rng.IntN(g.cfg.SeedWindowDays)
		hoursAgo := g.rng.IntN(24)
		at := now.Add(-time.Duration(daysAgo*24+hoursAgo) * time.Hour)
		category := g.cfg.Categories[g.rng.IntN(len(g.cfg.Categories))]
		evs[i] = g.build(tenant, category, at)
	}
	return evs
}

func (g *Generator) amountRange() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("%d-%d INR", g.cfg.AmountMin, g.cfg.AmountMax)
}
