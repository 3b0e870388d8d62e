package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/paystream/internal/filter"
	"github.com/gyaneshwarpardhi/paystream/internal/store"
	"github.com/gyaneshwarpardhi/paystream/internal/stream"
)

var (
	ErrNotFound = errors.New("pipeline not found")
	ErrExists   = errors.New("pipeline already exists")
)

// Hub owns the named pipelines attached to one channel.
type Hub struct {
	ch       *stream.Channel
	store    store.Store
	defaults Options
	warm     []string

	mu        sync.RWMutex
	pipelines map[string]*Pipeline
}

// NewHub creates an empty hub. New pipelines are warmed from st for every
// tenant in warmTenants; st may be nil.
func NewHub(ch *stream.Channel, st store.Store, defaults Options, warmTenants ...string) *Hub {
	return &Hub{
		ch:        ch,
		store:     st,
		defaults:  defaults,
		warm:      warmTenants,
		pipelines: make(map[string]*Pipeline),
	}
}

// Create builds, subscribes and warms a pipeline. An empty id gets a random
// one; an empty filter expression matches everything.
func (h *Hub) Create(ctx context.Context, id, expr string) (*Pipeline, error) {
	f, err := filter.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	h.mu.Lock()
	if _, ok := h.pipelines[id]; ok {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}
	opts := h.defaults
	opts.Filter = f
	// Held paused until warm so live events cannot be applied twice.
	opts.Paused = true
	p := New(h.ch, id, opts)
	h.pipelines[id] = p
	h.mu.Unlock()

	if h.store != nil {
		for _, tenant := range h.warm {
			if err := p.Warm(ctx, h.store, tenant); err != nil {
				slog.Warn("cold start skipped", "pipeline", id, "tenant", tenant, "err", err)
			}
		}
	}
	if !h.defaults.Paused {
		p.sub.Resume()
	}
	slog.Info("pipeline created", "pipeline", id, "filter", f.String())
	return p, nil
}

// Get returns the pipeline named id.
func (h *Hub) Get(id string) (*Pipeline, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.pipelines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// Remove closes and forgets the pipeline named id.
func (h *Hub) Remove(id string) error {
	h.mu.Lock()
	p, ok := h.pipelines[id]
	delete(h.pipelines, id)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.Close()
	slog.Info("pipeline removed", "pipeline", id)
	return nil
}

// List describes every pipeline, sorted by id.
func (h *Hub) List() []Info {
	h.mu.RLock()
	ps := make([]*Pipeline, 0, len(h.pipelines))
	for _, p := range h.pipelines {
		ps = append(ps, p)
	}
	h.mu.RUnlock()

	out := make([]Info, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResetTenant clears tenant in every pipeline. It is registered as the
// generator's reseed hook.
func (h *Hub) ResetTenant(tenant string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, p := range h.pipelines {
		p.Reset(tenant)
	}
}

// Len returns the number of pipelines.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pipelines)
}

// Close removes every pipeline.
func (h *Hub) Close() {
	h.mu.Lock()
	ps := h.pipelines
	h.pipelines = make(map[string]*Pipeline)
	h.mu.Unlock()
	for _, p := range ps {
		p.Close()
	}
}
