package eventlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/ring"
)

// DefaultCapacity is the number of events retained when none is configured.
const DefaultCapacity = 500

// Log is a capped sequence of raw events, newest first. Appending past the
// capacity drops the oldest entry. Entries are never modified.
//
// Log is not safe for concurrent use.
type Log struct {
	entries *ring.Ring[*event.Event] // oldest at index 0
}

// New returns a Log retaining at most capacity events.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{entries: ring.New[*event.Event](capacity)}
}

// Append inserts ev at the head.
func (l *Log) Append(ev *event.Event) {
	l.entries.Push(ev)
}

// Load replaces the contents with events given newest first, as returned by
// a store's recent query. Only the first Cap events are kept.
func (l *Log) Load(newestFirst []*event.Event) {
	l.entries.Reset()
	if len(newestFirst) > l.entries.Cap() {
		newestFirst = newestFirst[:l.entries.Cap()]
	}
	for i := len(newestFirst) - 1; i >= 0; i-- {
		l.entries.Push(newestFirst[i])
	}
}

// Len returns the number of retained events.
func (l *Log) Len() int { return l.entries.Len() }

// Cap returns the retention limit.
func (l *Log) Cap() int { return l.entries.Cap() }

// Reset drops every entry.
func (l *Log) Reset() { l.entries.Reset() }

// at returns the i-th newest event.
func (l *Log) at(i int) *event.Event {
	return l.entries.At(l.entries.Len() - 1 - i)
}

// Page returns the 1-indexed page of size events, newest first, and the total
// page count. page is clamped into [1, totalPages]; an empty log yields an
// empty page and zero pages. A size below 1 is treated as 1.
func (l *Log) Page(page, size int) ([]*event.Event, int) {
	if size < 1 {
		size = 1
	}
	n := l.entries.Len()
	if n == 0 {
		return []*event.Event{}, 0
	}
	total := (n + size - 1) / size
	page = max(1, min(page, total))

	start := (page - 1) * size
	end := min(start+size, n)
	out := make([]*event.Event, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, l.at(i))
	}
	return out, total
}

// ExportAll returns every retained event, newest first.
func (l *Log) ExportAll() []*event.Event {
	n := l.entries.Len()
	out := make([]*event.Event, n)
	for i := 0; i < n; i++ {
		out[i] = l.at(i)
	}
	return out
}

// TopCategory returns the most frequent category among retained events.
// Ties go to the alphabetically first category; an empty log returns "".
func (l *Log) TopCategory() string {
	counts := make(map[string]int)
	for i := 0; i < l.entries.Len(); i++ {
		counts[l.entries.At(i).Category]++
	}
	best, bestN := "", 0
	for c, n := range counts {
		if n > bestN || (n == bestN && c < best) {
			best, bestN = c, n
		}
	}
	return best
}

var csvHeader = []string{"Timestamp", "Type", "Amount", "Method", "Status"}

// WriteCSV renders events (in the given order) as CSV with a header row.
func WriteCSV(w io.Writer, events []*event.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, ev := range events {
		row := []string{
			ev.OccurredAt.UTC().Format(time.RFC3339Nano),
			ev.Type(),
			ev.Amount.String(),
			ev.Category,
			string(ev.Outcome),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", ev.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
