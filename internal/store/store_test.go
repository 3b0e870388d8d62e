package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/paystream/internal/config"
	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/store"
)

var t0 = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func mkEvent(id, tenant string, at time.Time) *event.Event {
	return &event.Event{
		ID:         id,
		TenantID:   tenant,
		Kind:       event.KindReceived,
		Amount:     decimal.NewFromInt(100),
		Category:   "card",
		Outcome:    event.OutcomeSuccess,
		OccurredAt: at,
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	n, err := m.BulkInsert(ctx, []*event.Event{
		mkEvent("a", "t1", t0),
		mkEvent("b", "t1", t0.Add(2*time.Minute)),
		mkEvent("c", "t1", t0.Add(time.Minute)),
		mkEvent("a", "t1", t0), // duplicate id
		mkEvent("d", "t2", t0),
	})
	if err != nil || n != 4 {
		t.Fatalf("BulkInsert = %d, %v; want 4, nil", n, err)
	}
	if c, _ := m.Count(ctx, "t1"); c != 3 {
		t.Errorf("Count(t1) = %d, want 3", c)
	}

	recent, _ := m.Recent(ctx, "t1", 2)
	if len(recent) != 2 || recent[0].ID != "b" || recent[1].ID != "c" {
		t.Errorf("Recent = %v, want [b c]", ids(recent))
	}

	if err := m.Clear(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	if c, _ := m.Count(ctx, "t1"); c != 0 {
		t.Errorf("Count after Clear = %d", c)
	}
	if c, _ := m.Count(ctx, "t2"); c != 1 {
		t.Errorf("Clear touched another tenant")
	}
	// Cleared ids can be written again.
	if err := m.Write(ctx, mkEvent("a", "t1", t0)); err != nil {
		t.Fatal(err)
	}
	if c, _ := m.Count(ctx, "t1"); c != 1 {
		t.Errorf("Count after rewrite = %d", c)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), config.StoreConf{Driver: "mongo"})
	if !errors.Is(err, store.ErrUnknownDriver) {
		t.Fatalf("err = %v, want ErrUnknownDriver", err)
	}
	st, err := store.Open(context.Background(), config.StoreConf{Driver: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	st.Close()
}

// flaky fails the first failures writes and then delegates to Memory.
type flaky struct {
	*store.Memory
	failures atomic.Int32
	calls    atomic.Int32
	block    chan struct{}
}

func (f *flaky) Write(ctx context.Context, ev *event.Event) error {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.failures.Add(-1) >= 0 {
		return fmt.Errorf("transient")
	}
	return f.Memory.Write(ctx, ev)
}

func TestWriteBehind_RetriesThenPersists(t *testing.T) {
	f := &flaky{Memory: store.NewMemory()}
	f.failures.Store(2)
	wb := store.NewWriteBehind(f, store.WriteBehindOptions{Workers: 1, QueueSize: 4, RetryAttempts: 3, RetryPerSecond: 1000})

	if !wb.Submit(mkEvent("x", "t1", t0)) {
		t.Fatal("Submit rejected")
	}
	wb.Close()

	if c, _ := f.Count(context.Background(), "t1"); c != 1 {
		t.Fatalf("persisted %d events, want 1", c)
	}
	if got := f.calls.Load(); got != 3 {
		t.Errorf("write calls = %d, want 3", got)
	}
}

func TestWriteBehind_GivesUpAfterAttempts(t *testing.T) {
	f := &flaky{Memory: store.NewMemory()}
	f.failures.Store(100)
	wb := store.NewWriteBehind(f, store.WriteBehindOptions{Workers: 1, QueueSize: 4, RetryAttempts: 2, RetryPerSecond: 1000})
	wb.Submit(mkEvent("x", "t1", t0))
	wb.Close()

	if got := f.calls.Load(); got != 2 {
		t.Errorf("write calls = %d, want 2", got)
	}
	if c, _ := f.Count(context.Background(), "t1"); c != 0 {
		t.Errorf("failed write was persisted")
	}
}

func TestWriteBehind_FullQueueNeverBlocks(t *testing.T) {
	f := &flaky{Memory: store.NewMemory(), block: make(chan struct{})}
	wb := store.NewWriteBehind(f, store.WriteBehindOptions{Workers: 1, QueueSize: 2, RetryAttempts: 1})

	// The worker holds one event inside Write; two more fill the queue.
	wb.Submit(mkEvent("e0", "t1", t0))
	deadline := time.Now().Add(2 * time.Second)
	for f.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	var wg sync.WaitGroup
	accepted := atomic.Int32{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 10; i++ {
			if wb.Submit(mkEvent(fmt.Sprintf("e%d", i), "t1", t0)) {
				accepted.Add(1)
			}
		}
	}()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on a full queue")
	}
	if got := accepted.Load(); got != 2 {
		t.Errorf("accepted = %d, want 2", got)
	}

	close(f.block)
	wb.Close()
	if c, _ := f.Count(context.Background(), "t1"); c != 3 {
		t.Errorf("persisted = %d, want 3", c)
	}
	if wb.Submit(mkEvent("late", "t1", t0)) {
		t.Errorf("Submit after Close accepted")
	}
}

func ids(evs []*event.Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.ID
	}
	return out
}
