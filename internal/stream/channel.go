package stream

import (
	"sync"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/metrics"
)

// DefaultQueueCapacity bounds a subscription's intake queue when no capacity is given.
const DefaultQueueCapacity = 1024

// Publisher accepts events for fan-out.
type Publisher interface {
	Publish(ev *event.Event)
}

// Channel fans every published event out to all registered subscriptions.
//
// Publish never blocks on a subscriber: each event is copied into the
// subscriber's own bounded intake queue and processed by that subscriber's
// goroutine. Order is preserved per subscriber only.
type Channel struct {
	mu       sync.RWMutex
	subs     map[uint64]*Subscription
	nextID   uint64
	capacity int
}

// NewChannel creates a Channel whose subscriptions default to queueCapacity.
func NewChannel(queueCapacity int) *Channel {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	return &Channel{
		subs:     make(map[uint64]*Subscription),
		capacity: queueCapacity,
	}
}

// Publish delivers ev to every subscription registered at the time of the call.
func (c *Channel) Publish(ev *event.Event) {
	c.mu.RLock()
	for _, s := range c.subs {
		s.enqueue(ev)
	}
	c.mu.RUnlock()
	metrics.EventsPublished.Inc()
}

// Subscribe registers a new subscription. It receives only events published
// after this call returns; there is no replay.
func (c *Channel) Subscribe(opts ...Option) *Subscription {
	s := newSubscription(c, c.capacity, opts...)

	c.mu.Lock()
	c.nextID++
	s.id = c.nextID
	c.subs[s.id] = s
	c.mu.Unlock()

	metrics.Subscribers.Inc()
	s.start()
	return s
}

// Unsubscribe removes s and discards anything still queued for it.
// It is safe to call more than once.
func (c *Channel) Unsubscribe(s *Subscription) {
	c.mu.Lock()
	_, ok := c.subs[s.id]
	delete(c.subs, s.id)
	c.mu.Unlock()

	if ok {
		metrics.Subscribers.Dec()
	}
	s.shutdown()
}

// Len returns the number of registered subscriptions.
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Close unsubscribes everyone.
func (c *Channel) Close() {
	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()
	for _, s := range subs {
		c.Unsubscribe(s)
	}
}
