package stream_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/metrics"
	"github.com/gyaneshwarpardhi/paystream/internal/stream"
)

func makeEvent(i int) *event.Event {
	return &event.Event{
		ID:         fmt.Sprintf("evt-%d", i),
		TenantID:   "tenant_1",
		Kind:       event.KindReceived,
		Amount:     decimal.NewFromInt(int64(i)),
		Category:   "card",
		Outcome:    event.OutcomeSuccess,
		OccurredAt: time.Now(),
	}
}

// recorder collects handled event ids.
type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) handle(ev *event.Event) {
	r.mu.Lock()
	r.ids = append(r.ids, ev.ID)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func expectIDs(t *testing.T, got []string, from, to int) {
	t.Helper()
	if len(got) != to-from+1 {
		t.Fatalf("got %d events %v, want %d", len(got), got, to-from+1)
	}
	for i, id := range got {
		if want := fmt.Sprintf("evt-%d", from+i); id != want {
			t.Fatalf("position %d: got %s, want %s", i, id, want)
		}
	}
}

func TestChannel_FIFOPerSubscriber(t *testing.T) {
	ch := stream.NewChannel(100)
	defer ch.Close()

	var a, b recorder
	subA := ch.Subscribe(stream.WithHandler(a.handle))
	subB := ch.Subscribe(stream.WithHandler(b.handle))

	for i := 1; i <= 50; i++ {
		ch.Publish(makeEvent(i))
	}
	subA.Sync()
	subB.Sync()

	expectIDs(t, a.snapshot(), 1, 50)
	expectIDs(t, b.snapshot(), 1, 50)
}

func TestChannel_NoReplay(t *testing.T) {
	ch := stream.NewChannel(10)
	defer ch.Close()

	ch.Publish(makeEvent(1))
	var r recorder
	sub := ch.Subscribe(stream.WithHandler(r.handle))
	ch.Publish(makeEvent(2))
	sub.Sync()

	expectIDs(t, r.snapshot(), 2, 2)
}

func TestChannel_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	ch := stream.NewChannel(4)
	defer ch.Close()

	release := make(chan struct{})
	ch.Subscribe(stream.WithHandler(func(*event.Event) { <-release }))
	var fast recorder
	fastSub := ch.Subscribe(stream.WithHandler(fast.handle), stream.WithCapacity(100))

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 100; i++ {
			ch.Publish(makeEvent(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a stalled subscriber")
	}
	fastSub.Sync()
	expectIDs(t, fast.snapshot(), 1, 100)
	close(release)
}

func TestSubscription_PauseResumeReplaysBacklogInOrder(t *testing.T) {
	ch := stream.NewChannel(100)
	defer ch.Close()

	var r recorder
	sub := ch.Subscribe(stream.WithHandler(r.handle))

	ch.Publish(makeEvent(1))
	sub.Sync()
	sub.Pause()
	for i := 2; i <= 6; i++ {
		ch.Publish(makeEvent(i))
	}
	if got := r.snapshot(); len(got) != 1 {
		t.Fatalf("events handled while paused: %v", got)
	}
	if sub.Pending() != 5 {
		t.Fatalf("pending = %d, want 5", sub.Pending())
	}

	sub.Resume()
	ch.Publish(makeEvent(7))
	sub.Sync()
	expectIDs(t, r.snapshot(), 1, 7)
}

func TestSubscription_QueueDepthGaugeDrains(t *testing.T) {
	ch := stream.NewChannel(100)
	defer ch.Close()

	var r recorder
	sub := ch.Subscribe(stream.WithName("depth-drain"), stream.WithHandler(r.handle), stream.Paused())
	for i := 1; i <= 5; i++ {
		ch.Publish(makeEvent(i))
	}
	gauge := metrics.QueueDepth.WithLabelValues("depth-drain")
	if got := testutil.ToFloat64(gauge); got != 5 {
		t.Fatalf("depth while paused = %v, want 5", got)
	}

	sub.Resume()
	sub.Sync()
	if got := testutil.ToFloat64(gauge); got != 0 {
		t.Errorf("depth after drain = %v, want 0", got)
	}

	ch.Publish(makeEvent(6))
	sub.Sync()
	if got := testutil.ToFloat64(gauge); got != 0 {
		t.Errorf("depth after live event = %v, want 0", got)
	}
}

func TestSubscription_OverflowDropsOldest(t *testing.T) {
	ch := stream.NewChannel(100)
	defer ch.Close()

	var r recorder
	sub := ch.Subscribe(stream.WithHandler(r.handle), stream.WithCapacity(3), stream.Paused())
	for i := 1; i <= 5; i++ {
		ch.Publish(makeEvent(i))
	}
	if sub.Dropped() != 2 {
		t.Fatalf("dropped = %d, want 2", sub.Dropped())
	}
	sub.Resume()
	sub.Sync()
	expectIDs(t, r.snapshot(), 3, 5)
}

func TestSubscription_CloseDiscardsQueued(t *testing.T) {
	ch := stream.NewChannel(100)

	var r recorder
	sub := ch.Subscribe(stream.WithHandler(r.handle), stream.Paused())
	for i := 1; i <= 3; i++ {
		ch.Publish(makeEvent(i))
	}
	sub.Close()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not exit after close")
	}
	ch.Publish(makeEvent(4))
	if got := r.snapshot(); len(got) != 0 {
		t.Fatalf("closed subscription handled %v", got)
	}
	if ch.Len() != 0 {
		t.Errorf("channel still has %d subscriptions", ch.Len())
	}
	sub.Close() // second close is a no-op
}

func TestSubscription_Filter(t *testing.T) {
	ch := stream.NewChannel(100)
	defer ch.Close()

	var r recorder
	sub := ch.Subscribe(
		stream.WithHandler(r.handle),
		stream.WithFilter(func(ev *event.Event) bool { return ev.Amount.IntPart()%2 == 0 }),
	)
	for i := 1; i <= 4; i++ {
		ch.Publish(makeEvent(i))
	}
	sub.Sync()
	got := r.snapshot()
	if len(got) != 2 || got[0] != "evt-2" || got[1] != "evt-4" {
		t.Fatalf("filtered events = %v", got)
	}
}

func TestSubscription_HandlerSetLater(t *testing.T) {
	ch := stream.NewChannel(100)
	defer ch.Close()

	sub := ch.Subscribe()
	ch.Publish(makeEvent(1))
	var r recorder
	sub.OnEvent(r.handle)
	sub.Sync()
	expectIDs(t, r.snapshot(), 1, 1)
}
