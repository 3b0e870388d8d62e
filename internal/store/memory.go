package store

import (
	"context"
	"slices"
	"sync"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
)

// Memory is an in-process Store. It is the default driver and the test double
// for the durable ones.
type Memory struct {
	mu       sync.RWMutex
	byTenant map[string][]*event.Event
	ids      map[string]struct{}
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		byTenant: make(map[string][]*event.Event),
		ids:      make(map[string]struct{}),
	}
}

func (m *Memory) Write(_ context.Context, ev *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insert(ev)
	return nil
}

func (m *Memory) BulkInsert(_ context.Context, evs []*event.Event) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range evs {
		if m.insert(ev) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) insert(ev *event.Event) bool {
	if _, ok := m.ids[ev.ID]; ok {
		return false
	}
	m.ids[ev.ID] = struct{}{}
	m.byTenant[ev.TenantID] = append(m.byTenant[ev.TenantID], ev)
	return true
}

func (m *Memory) Count(_ context.Context, tenant string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byTenant[tenant]), nil
}

func (m *Memory) Clear(_ context.Context, tenant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.byTenant[tenant] {
		delete(m.ids, ev.ID)
	}
	delete(m.byTenant, tenant)
	return nil
}

func (m *Memory) Recent(_ context.Context, tenant string, limit int) ([]*event.Event, error) {
	m.mu.RLock()
	out := slices.Clone(m.byTenant[tenant])
	m.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b *event.Event) int {
		return b.OccurredAt.Compare(a.OccurredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
