package aggregate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/ring"
)

// Period selects one of the trend windows.
type Period string

const (
	PeriodDay   Period = "day"   // 24 hourly buckets
	PeriodWeek  Period = "week"  // 7 daily buckets
	PeriodMonth Period = "month" // 30 daily buckets
)

// Periods lists every maintained window.
var Periods = []Period{PeriodDay, PeriodWeek, PeriodMonth}

// ParsePeriod validates a period name; the empty string means PeriodDay.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "":
		return PeriodDay, nil
	case PeriodDay, PeriodWeek, PeriodMonth:
		return Period(s), nil
	}
	return "", fmt.Errorf("unknown trend period %q (want day, week or month)", s)
}

type unit int

const (
	unitHour unit = iota
	unitDay
)

func (p Period) layout() (unit, int) {
	switch p {
	case PeriodWeek:
		return unitDay, 7
	case PeriodMonth:
		return unitDay, 30
	default:
		return unitHour, 24
	}
}

// TrendBucket is one slot of a trend window.
type TrendBucket struct {
	Start        time.Time       `json:"timestamp"`
	Amount       decimal.Decimal `json:"amount"`
	Count        int64           `json:"count"`
	SuccessCount int64           `json:"success_count"`
	SuccessRate  float64         `json:"success_rate"`
}

type bucket struct {
	start   time.Time
	amount  decimal.Decimal
	count   int64
	success int64
}

// Window is a fixed number of equal-width, contiguous time buckets ending at
// the bucket that contains the most recent wall-clock time (or event time,
// if an event arrives from the future). Every slot always exists, empty or not.
type Window struct {
	period  Period
	unit    unit
	size    int
	loc     *time.Location
	buckets *ring.Ring[bucket]
	newest  time.Time
}

// NewWindow builds a window for p ending at the bucket containing now.
func NewWindow(p Period, loc *time.Location, now time.Time) *Window {
	if loc == nil {
		loc = time.UTC
	}
	u, size := p.layout()
	w := &Window{period: p, unit: u, size: size, loc: loc, buckets: ring.New[bucket](size)}
	w.fill(w.truncate(now))
	return w
}

// Period returns the window's period.
func (w *Window) Period() Period { return w.period }

// Apply adds ev to the bucket for its OccurredAt. Events older than the
// oldest retained bucket are discarded and Apply returns false.
func (w *Window) Apply(ev *event.Event, now time.Time) bool {
	key := w.truncate(ev.OccurredAt)
	target := w.truncate(now)
	if key.After(target) {
		target = key
	}
	w.slide(target)

	back := w.steps(key, w.newest)
	if back >= w.size {
		return false
	}
	b := w.buckets.Ptr(w.size - 1 - back)
	b.amount = b.amount.Add(ev.Amount)
	b.count++
	if ev.Succeeded() {
		b.success++
	}
	return true
}

// Tick slides the window forward to now without adding anything.
func (w *Window) Tick(now time.Time) {
	w.slide(w.truncate(now))
}

// Reset empties every bucket and re-anchors the window at now.
func (w *Window) Reset(now time.Time) {
	w.fill(w.truncate(now))
}

// Snapshot returns exactly size buckets, oldest first.
func (w *Window) Snapshot() []TrendBucket {
	out := make([]TrendBucket, w.buckets.Len())
	for i := range out {
		b := w.buckets.At(i)
		tb := TrendBucket{Start: b.start, Amount: b.amount, Count: b.count, SuccessCount: b.success}
		if b.count > 0 {
			tb.SuccessRate = float64(b.success) / float64(b.count) * 100
		}
		out[i] = tb
	}
	return out
}

func (w *Window) fill(newest time.Time) {
	w.buckets.Reset()
	for i := w.size - 1; i >= 0; i-- {
		w.buckets.Push(bucket{start: w.shift(newest, -i), amount: decimal.Zero})
	}
	w.newest = newest
}

func (w *Window) slide(target time.Time) {
	if !target.After(w.newest) {
		return
	}
	n := w.steps(w.newest, target)
	if n >= w.size {
		w.fill(target)
		return
	}
	for i := 1; i <= n; i++ {
		w.buckets.Push(bucket{start: w.shift(w.newest, i), amount: decimal.Zero})
	}
	w.newest = target
}

func (w *Window) truncate(t time.Time) time.Time {
	t = t.In(w.loc)
	if w.unit == unitHour {
		// The repeated fall-back hour is ambiguous as a wall time, so
		// truncate the instant, shifted by t's own zone offset.
		_, off := t.Zone()
		d := time.Duration(off) * time.Second
		return t.Add(d).Truncate(time.Hour).Add(-d).In(w.loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, w.loc)
}

func (w *Window) shift(t time.Time, n int) time.Time {
	if w.unit == unitHour {
		return t.Add(time.Duration(n) * time.Hour)
	}
	return t.AddDate(0, 0, n)
}

// steps counts whole buckets from a to b (b not before a, both truncated).
func (w *Window) steps(a, b time.Time) int {
	if w.unit == unitHour {
		return int(b.Sub(a) / time.Hour)
	}
	// Compare calendar dates so DST days of 23h/25h still count as one.
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da) / (24 * time.Hour))
}

// Trends maintains the day, week and month windows side by side.
type Trends struct {
	windows map[Period]*Window
	loc     *time.Location
}

// NewTrends builds all three windows anchored at now.
func NewTrends(loc *time.Location, now time.Time) *Trends {
	if loc == nil {
		loc = time.UTC
	}
	t := &Trends{windows: make(map[Period]*Window, len(Periods)), loc: loc}
	for _, p := range Periods {
		t.windows[p] = NewWindow(p, loc, now)
	}
	return t
}

// Apply adds ev to every window.
func (t *Trends) Apply(ev *event.Event, now time.Time) {
	for _, w := range t.windows {
		w.Apply(ev, now)
	}
}

// Tick slides every window to now.
func (t *Trends) Tick(now time.Time) {
	for _, w := range t.windows {
		w.Tick(now)
	}
}

// Reset empties all windows.
func (t *Trends) Reset(now time.Time) {
	for _, w := range t.windows {
		w.Reset(now)
	}
}

// Snapshot returns the buckets of one window, oldest first.
func (t *Trends) Snapshot(p Period) []TrendBucket {
	w, ok := t.windows[p]
	if !ok {
		return nil
	}
	return w.Snapshot()
}

// PeakHour returns the hour of day (0–23) whose hourly bucket in the day
// window holds the most events. Ties go to the smaller hour; an empty window
// reports 0.
func (t *Trends) PeakHour() int {
	var counts [24]int64
	for _, b := range t.windows[PeriodDay].Snapshot() {
		counts[b.Start.In(t.loc).Hour()] += b.Count
	}
	peak := 0
	for h := 1; h < len(counts); h++ {
		if counts[h] > counts[peak] {
			peak = h
		}
	}
	return peak
}
