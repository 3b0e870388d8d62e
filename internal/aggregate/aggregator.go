package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
)

// RunningMetrics holds the per-tenant accumulators. Derived values
// (average, success rate) are computed on read.
type RunningMetrics struct {
	TotalVolume  decimal.Decimal
	TotalCount   int64
	SuccessCount int64
	LastCategory string
	categories   map[string]*CategoryStats
}

// CategoryStats is the per-category breakdown for one tenant.
type CategoryStats struct {
	Category     string          `json:"category"`
	Count        int64           `json:"count"`
	SuccessCount int64           `json:"success_count"`
	Volume       decimal.Decimal `json:"volume"`
}

// Metrics is the read-only view of a tenant's running metrics.
type Metrics struct {
	TenantID      string          `json:"tenant_id"`
	TotalVolume   decimal.Decimal `json:"total_volume"`
	SuccessRate   float64         `json:"success_rate"`
	AverageAmount decimal.Decimal `json:"average_amount"`
	PeakHour      int             `json:"peak_hour"`
	LastCategory  string          `json:"last_category"`
	TopCategory   string          `json:"top_category,omitempty"`
	TotalCount    int64           `json:"total_count"`
	Categories    []CategoryStats `json:"categories"`
}

type tenantState struct {
	running RunningMetrics
	trends  *Trends
}

// Aggregator maintains running metrics and trend windows per tenant.
// Every update is O(1) in the number of events seen.
//
// Aggregator is not safe for concurrent use; the owning pipeline serialises access.
type Aggregator struct {
	loc     *time.Location
	clock   func() time.Time
	tenants map[string]*tenantState
}

// New creates an Aggregator bucketing in loc and reading wall-clock from clock.
func New(loc *time.Location, clock func() time.Time) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = time.Now
	}
	return &Aggregator{loc: loc, clock: clock, tenants: make(map[string]*tenantState)}
}

func (a *Aggregator) tenant(id string) *tenantState {
	ts, ok := a.tenants[id]
	if !ok {
		ts = &tenantState{
			running: RunningMetrics{TotalVolume: decimal.Zero, categories: make(map[string]*CategoryStats)},
			trends:  NewTrends(a.loc, a.clock()),
		}
		a.tenants[id] = ts
	}
	return ts
}

// Apply folds ev into its tenant's accumulators and trend windows.
func (a *Aggregator) Apply(ev *event.Event) {
	ts := a.tenant(ev.TenantID)
	m := &ts.running
	m.TotalVolume = m.TotalVolume.Add(ev.Amount)
	m.TotalCount++
	if ev.Succeeded() {
		m.SuccessCount++
	}
	m.LastCategory = ev.Category

	cs, ok := m.categories[ev.Category]
	if !ok {
		cs = &CategoryStats{Category: ev.Category, Volume: decimal.Zero}
		m.categories[ev.Category] = cs
	}
	cs.Count++
	cs.Volume = cs.Volume.Add(ev.Amount)
	if ev.Succeeded() {
		cs.SuccessCount++
	}

	ts.trends.Apply(ev, a.clock())
}

// Snapshot returns the current metrics for tenant. An unknown tenant yields
// zero values.
func (a *Aggregator) Snapshot(tenant string) Metrics {
	out := Metrics{
		TenantID:      tenant,
		TotalVolume:   decimal.Zero,
		AverageAmount: decimal.Zero,
		Categories:    []CategoryStats{},
	}
	ts, ok := a.tenants[tenant]
	if !ok {
		return out
	}
	m := ts.running
	out.TotalVolume = m.TotalVolume
	out.TotalCount = m.TotalCount
	out.LastCategory = m.LastCategory
	out.PeakHour = ts.trends.PeakHour()
	if m.TotalCount > 0 {
		out.SuccessRate = float64(m.SuccessCount) / float64(m.TotalCount) * 100
		out.AverageAmount = m.TotalVolume.Div(decimal.NewFromInt(m.TotalCount))
	}
	for _, cs := range m.categories {
		out.Categories = append(out.Categories, *cs)
	}
	sort.Slice(out.Categories, func(i, j int) bool {
		return out.Categories[i].Category < out.Categories[j].Category
	})
	return out
}

// Running returns a copy of the raw accumulators for tenant.
func (a *Aggregator) Running(tenant string) RunningMetrics {
	ts, ok := a.tenants[tenant]
	if !ok {
		return RunningMetrics{TotalVolume: decimal.Zero}
	}
	m := ts.running
	m.categories = nil
	return m
}

// Trends returns one trend window for tenant, oldest bucket first. The window
// is not slid; call Tick first for a fresh axis.
func (a *Aggregator) Trends(tenant string, p Period) []TrendBucket {
	ts, ok := a.tenants[tenant]
	if !ok {
		return NewTrends(a.loc, a.clock()).Snapshot(p)
	}
	return ts.trends.Snapshot(p)
}

// Tick slides tenant's trend windows to the current wall-clock time.
func (a *Aggregator) Tick(tenant string) {
	if ts, ok := a.tenants[tenant]; ok {
		ts.trends.Tick(a.clock())
	}
}

// Reset zeroes every accumulator and trend bucket for tenant.
func (a *Aggregator) Reset(tenant string) {
	delete(a.tenants, tenant)
}

// Tenants lists tenants that have received at least one event, sorted.
func (a *Aggregator) Tenants() []string {
	out := make([]string, 0, len(a.tenants))
	for id := range a.tenants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
