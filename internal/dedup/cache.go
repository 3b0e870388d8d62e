package dedup

import (
	"github.com/gyaneshwarpardhi/paystream/internal/metrics"
)

// DefaultCapacity is the number of identifiers retained when none is configured.
const DefaultCapacity = 1000

// Cache is a bounded set of recently seen event identifiers.
//
// When an insert pushes the size past the capacity, the oldest half is
// evicted in one batch rather than one entry per insert. Identifiers evicted
// that way can be admitted again.
//
// Cache is not safe for concurrent use; each pipeline owns one.
type Cache struct {
	capacity int
	seen     map[string]struct{}
	order    []string // insertion order, oldest first
}

// New returns a Cache holding at most capacity identifiers.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity+1),
		order:    make([]string, 0, capacity+1),
	}
}

// Admit records id and returns true the first time it is seen.
// It returns false for an id already present.
func (c *Cache) Admit(id string) bool {
	if _, ok := c.seen[id]; ok {
		return false
	}
	c.seen[id] = struct{}{}
	c.order = append(c.order, id)
	if len(c.order) > c.capacity {
		c.evict(c.capacity / 2)
	}
	return true
}

// Contains reports whether id is currently retained.
func (c *Cache) Contains(id string) bool {
	_, ok := c.seen[id]
	return ok
}

// Len returns the number of retained identifiers.
func (c *Cache) Len() int { return len(c.order) }

// Reset forgets every identifier.
func (c *Cache) Reset() {
	clear(c.seen)
	c.order = c.order[:0]
}

func (c *Cache) evict(n int) {
	if n <= 0 {
		n = 1
	}
	for _, id := range c.order[:n] {
		delete(c.seen, id)
	}
	c.order = append(c.order[:0], c.order[n:]...)
	metrics.OverflowDrops.WithLabelValues(metrics.ComponentDedup).Add(float64(n))
}
