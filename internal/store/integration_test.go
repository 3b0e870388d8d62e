package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/store"
)

func TestPostgresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatal(err)
	}
	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	pg, err := store.NewPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer pg.Close()
	exerciseStore(t, pg, true)
}

func TestClickHouseIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:23.3.8.21-alpine",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword("clickhouse"),
		clickhouse.WithDatabase("default"),
	)
	if err != nil {
		t.Fatalf("failed to start ClickHouse container: %v", err)
	}
	defer container.Terminate(ctx)

	host, err := container.ConnectionHost(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ch, err := store.NewClickHouse(ctx, fmt.Sprintf("clickhouse://default:clickhouse@%s/default", host))
	if err != nil {
		t.Fatalf("NewClickHouse: %v", err)
	}
	defer ch.Close()
	exerciseStore(t, ch, false)
}

// exerciseStore runs the shared contract. exactConflicts is false for stores
// that cannot report skipped duplicates from a bulk insert.
func exerciseStore(t *testing.T, st store.Store, exactConflicts bool) {
	t.Helper()
	ctx := context.Background()

	evs := []*event.Event{
		mkEvent("p1", "tenant_it", t0),
		mkEvent("p2", "tenant_it", t0.Add(time.Hour)),
		mkEvent("p3", "tenant_it", t0.Add(2*time.Hour)),
	}
	evs[1].Amount = decimal.RequireFromString("123.45")
	evs[1].Outcome, evs[1].Kind = event.OutcomeFailed, event.KindFailed

	n, err := st.BulkInsert(ctx, evs)
	if err != nil || n != 3 {
		t.Fatalf("BulkInsert = %d, %v", n, err)
	}
	if err := st.Write(ctx, evs[0]); err != nil {
		t.Fatalf("Write duplicate: %v", err)
	}
	if exactConflicts {
		if n, _ := st.BulkInsert(ctx, evs); n != 0 {
			t.Errorf("re-insert stored %d rows", n)
		}
	}
	if c, err := st.Count(ctx, "tenant_it"); err != nil || c != 3 {
		t.Fatalf("Count = %d, %v; want 3", c, err)
	}

	recent, err := st.Recent(ctx, "tenant_it", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != "p3" || recent[1].ID != "p2" {
		t.Fatalf("Recent = %v, want [p3 p2]", ids(recent))
	}
	if !recent[1].Amount.Equal(decimal.RequireFromString("123.45")) || recent[1].Outcome != event.OutcomeFailed {
		t.Errorf("round trip mismatch: %+v", recent[1])
	}
	if !recent[0].OccurredAt.Equal(evs[2].OccurredAt) {
		t.Errorf("occurred_at = %v, want %v", recent[0].OccurredAt, evs[2].OccurredAt)
	}

	if err := st.Clear(ctx, "tenant_it"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if c, _ := st.Count(ctx, "tenant_it"); c != 0 {
		t.Errorf("Count after Clear = %d", c)
	}
}
