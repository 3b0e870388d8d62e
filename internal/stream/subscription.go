package stream

import (
	"sync"
	"sync/atomic"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/metrics"
	"github.com/gyaneshwarpardhi/paystream/internal/ring"
)

// Handler processes one delivered event. It always runs on the
// subscription's own goroutine, one event at a time.
type Handler func(ev *event.Event)

// Option configures a Subscription.
type Option func(*Subscription)

// WithCapacity bounds the intake queue.
func WithCapacity(n int) Option {
	return func(s *Subscription) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithName labels the subscription in metrics and logs.
func WithName(name string) Option {
	return func(s *Subscription) { s.name = name }
}

// WithFilter drops events for which keep returns false before they are queued.
func WithFilter(keep func(*event.Event) bool) Option {
	return func(s *Subscription) { s.filter = keep }
}

// WithHandler sets the handler at registration time.
func WithHandler(h Handler) Option {
	return func(s *Subscription) { s.handler = h }
}

// Paused starts the subscription in the paused state.
func Paused() Option {
	return func(s *Subscription) { s.paused = true }
}

// Subscription is a subscriber handle together with its intake queue.
//
// While running, queued events are handed to the handler in arrival order.
// While paused they accumulate (up to capacity, oldest dropped first) and
// Resume replays the backlog before anything that arrives later, since both
// share the same FIFO and the same worker.
type Subscription struct {
	id       uint64
	name     string
	ch       *Channel
	capacity int
	filter   func(*event.Event) bool

	mu      sync.Mutex
	cond    *sync.Cond
	queue   *ring.Ring[*event.Event]
	handler Handler
	paused  bool
	busy    bool
	closed  bool

	dropped   atomic.Uint64
	delivered atomic.Uint64
	done      chan struct{}
}

func newSubscription(ch *Channel, capacity int, opts ...Option) *Subscription {
	s := &Subscription{
		ch:       ch,
		capacity: capacity,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = ring.New[*event.Event](s.capacity)
	s.cond = sync.NewCond(&s.mu)
	return s
}

// ID returns the channel-assigned identifier.
func (s *Subscription) ID() uint64 { return s.id }

// Name returns the label given with WithName.
func (s *Subscription) Name() string { return s.name }

// OnEvent sets or replaces the handler. Events queued before a handler is
// set wait in the queue.
func (s *Subscription) OnEvent(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Pause stops handing events to the handler; later arrivals are queued.
// An event already being handled completes.
func (s *Subscription) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Resume replays the backlog in arrival order and then continues live.
func (s *Subscription) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.cond.Broadcast()
}

// IsPaused reports the current state.
func (s *Subscription) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Pending returns the number of queued, unprocessed events.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Delivered returns how many events were handed to the handler.
func (s *Subscription) Delivered() uint64 { return s.delivered.Load() }

// Sync blocks until the queue is empty and no handler call is in flight, or
// until the subscription is paused or closed.
func (s *Subscription) Sync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.closed && !s.paused && (s.queue.Len() > 0 || s.busy) {
		s.cond.Wait()
	}
}

// Done is closed once the worker goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close unsubscribes from the channel. Queued events are discarded.
func (s *Subscription) Close() {
	s.ch.Unsubscribe(s)
}

func (s *Subscription) enqueue(ev *event.Event) {
	if s.filter != nil && !s.filter(ev) {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	_, evicted := s.queue.Push(ev)
	s.reportDepth()
	s.mu.Unlock()
	s.cond.Broadcast()

	if evicted {
		s.dropped.Add(1)
		metrics.OverflowDrops.WithLabelValues(metrics.ComponentIntake).Inc()
	}
}

// reportDepth publishes the queue length; s.mu must be held so updates from
// enqueue and run land in order.
func (s *Subscription) reportDepth() {
	if s.name != "" {
		metrics.QueueDepth.WithLabelValues(s.name).Set(float64(s.queue.Len()))
	}
}

func (s *Subscription) start() {
	go s.run()
}

func (s *Subscription) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for !s.closed && (s.paused || s.handler == nil || s.queue.Len() == 0) {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		ev, _ := s.queue.Pop()
		s.reportDepth()
		h := s.handler
		s.busy = true
		s.mu.Unlock()

		h(ev)
		s.delivered.Add(1)

		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
		s.cond.Broadcast()
	}
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue.Reset()
	if s.name != "" {
		metrics.QueueDepth.DeleteLabelValues(s.name)
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}
