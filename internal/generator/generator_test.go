package generator_test

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/paystream/internal/config"
	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/generator"
	"github.com/gyaneshwarpardhi/paystream/internal/store"
)

var now = time.Date(2026, 10, 15, 12, 30, 0, 0, time.UTC)

type recorder struct {
	mu  sync.Mutex
	evs []*event.Event
}

func (r *recorder) Publish(ev *event.Event) {
	r.mu.Lock()
	r.evs = append(r.evs, ev)
	r.mu.Unlock()
}

func (r *recorder) Submit(ev *event.Event) bool {
	r.Publish(ev)
	return true
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.evs)
}

func newGenerator(t *testing.T, st store.Store, pub *recorder) *generator.Generator {
	t.Helper()
	cfg := config.Default().Generator
	return generator.New(cfg, generator.Options{
		Store:     st,
		Publisher: pub,
		Rand:      rand.New(rand.NewPCG(1, 2)),
		Clock:     func() time.Time { return now },
	})
}

func TestNext_RoundRobinAndValid(t *testing.T) {
	g := newGenerator(t, store.NewMemory(), &recorder{})
	want := []string{"card", "bank_transfer", "crypto", "paypal", "card", "bank_transfer"}
	seen := map[string]bool{}
	for i, cat := range want {
		ev := g.Next()
		if ev.Category != cat {
			t.Errorf("event %d category = %q, want %q", i, ev.Category, cat)
		}
		if err := ev.Validate(); err != nil {
			t.Errorf("event %d invalid: %v", i, err)
		}
		if seen[ev.ID] {
			t.Errorf("duplicate id %s", ev.ID)
		}
		seen[ev.ID] = true
		if !ev.OccurredAt.Equal(now) {
			t.Errorf("occurred_at = %v", ev.OccurredAt)
		}
	}
}

func TestNext_AmountsAndOutcomeWeighting(t *testing.T) {
	g := newGenerator(t, store.NewMemory(), &recorder{})
	success := 0
	const n = 5000
	for i := 0; i < n; i++ {
		ev := g.Next()
		if !ev.Amount.IsInteger() || ev.Amount.IntPart() < 100 || ev.Amount.IntPart() > 500 {
			t.Fatalf("amount %s outside [100, 500]", ev.Amount)
		}
		if ev.Outcome != event.OutcomeSuccess && ev.Outcome != event.OutcomeFailed {
			t.Fatalf("unexpected outcome %q", ev.Outcome)
		}
		if ev.Kind != event.KindFor(ev.Outcome) {
			t.Fatalf("kind %q does not match outcome %q", ev.Kind, ev.Outcome)
		}
		if ev.Succeeded() {
			success++
		}
	}
	if rate := float64(success) / n; rate < 0.75 || rate > 0.85 {
		t.Errorf("success share = %.3f, want about 0.8", rate)
	}
}

func TestTick_PublishesAndSinks(t *testing.T) {
	pub := &recorder{}
	sink := &recorder{}
	g := generator.New(config.Default().Generator, generator.Options{
		Store:     store.NewMemory(),
		Sink:      sink,
		Publisher: pub,
		Clock:     func() time.Time { return now },
	})
	ev := g.Tick(context.Background())
	if pub.len() != 1 || pub.evs[0] != ev {
		t.Errorf("event not published")
	}
	if sink.len() != 1 || sink.evs[0] != ev {
		t.Errorf("event not handed to sink")
	}
}

func TestSeed_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	g := newGenerator(t, st, &recorder{})

	res, err := g.Seed(ctx, "tenant_1")
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if res.Count != 1000 || res.AmountRange != "100-500 INR" {
		t.Fatalf("first Seed = %+v", res)
	}

	recent, _ := st.Recent(ctx, "tenant_1", 0)
	oldest := now.Add(-30 * 24 * time.Hour)
	for _, ev := range recent {
		if !ev.OccurredAt.After(oldest) || ev.OccurredAt.After(now) {
			t.Fatalf("seeded event at %v outside trailing 30 days", ev.OccurredAt)
		}
	}

	res, err = g.Seed(ctx, "tenant_1")
	if err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	if res.Count != 1000 {
		t.Errorf("second Seed count = %d, want 1000", res.Count)
	}
	if c, _ := st.Count(ctx, "tenant_1"); c != 1000 {
		t.Errorf("store holds %d events after two seeds", c)
	}
}

func TestReseed_ClearsAndNotifies(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	g := newGenerator(t, st, &recorder{})
	if _, err := g.Seed(ctx, "tenant_1"); err != nil {
		t.Fatal(err)
	}
	before, _ := st.Recent(ctx, "tenant_1", 1)

	var reset []string
	g.OnReset(func(tenant string) {
		// The store is already cleared when callbacks run.
		if c, _ := st.Count(ctx, tenant); c != 0 {
			t.Errorf("callback saw %d stored events", c)
		}
		reset = append(reset, tenant)
	})

	res, err := g.Reseed(ctx, "tenant_1")
	if err != nil {
		t.Fatalf("Reseed: %v", err)
	}
	if res.Count != 1000 {
		t.Errorf("Reseed count = %d", res.Count)
	}
	if len(reset) != 1 || reset[0] != "tenant_1" {
		t.Errorf("OnReset calls = %v", reset)
	}
	if c, _ := st.Count(ctx, "tenant_1"); c != 1000 {
		t.Errorf("store holds %d events after reseed", c)
	}
	after, _ := st.Recent(ctx, "tenant_1", 1)
	if before[0].ID == after[0].ID {
		t.Errorf("reseed kept old events")
	}
}

func TestStartStop(t *testing.T) {
	pub := &recorder{}
	cfg := config.Default().Generator
	cfg.IntervalMs = 5
	g := generator.New(cfg, generator.Options{Store: store.NewMemory(), Publisher: pub})

	g.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for pub.len() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	g.Stop()
	g.Stop()

	n := pub.len()
	if n < 3 {
		t.Fatalf("published %d events, want at least 3", n)
	}
	time.Sleep(30 * time.Millisecond)
	if pub.len() != n {
		t.Errorf("generator kept publishing after Stop")
	}
}

func TestConfigure_SwapsCategories(t *testing.T) {
	g := newGenerator(t, store.NewMemory(), &recorder{})
	g.Next()
	g.Next()

	cfg := config.Default().Generator
	cfg.Categories = []string{"upi"}
	g.Configure(cfg)
	if ev := g.Next(); ev.Category != "upi" {
		t.Errorf("category after Configure = %q", ev.Category)
	}
}
