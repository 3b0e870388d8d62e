package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/paystream/internal/event"
)

// ReplacingMergeTree collapses rows with the same sorting key, so re-inserting
// an id is harmless once parts merge; reads use FINAL.
const chSchema = `
CREATE TABLE IF NOT EXISTS payments (
	id          String,
	tenant_id   String,
	kind        LowCardinality(String),
	amount      Decimal(38, 6),
	category    LowCardinality(String),
	outcome     LowCardinality(String),
	occurred_at DateTime64(9, 'UTC')
) ENGINE = ReplacingMergeTree()
ORDER BY (tenant_id, id)
`

// ClickHouse stores events in a ClickHouse table for analytical retention.
type ClickHouse struct {
	conn driver.Conn
}

// NewClickHouse connects using a clickhouse:// DSN, pings and ensures the table exists.
func NewClickHouse(ctx context.Context, dsn string) (*ClickHouse, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: parse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: connect: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse: ping: %w", err)
	}
	if err := conn.Exec(ctx, chSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse: create schema: %w", err)
	}
	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) Write(ctx context.Context, ev *event.Event) error {
	_, err := c.BulkInsert(ctx, []*event.Event{ev})
	return err
}

// BulkInsert sends one batch. ClickHouse does not report per-row conflicts, so
// the returned count is the batch size.
func (c *ClickHouse) BulkInsert(ctx context.Context, evs []*event.Event) (int, error) {
	if len(evs) == 0 {
		return 0, nil
	}
	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO payments")
	if err != nil {
		return 0, fmt.Errorf("clickhouse: prepare batch: %w", err)
	}
	for _, ev := range evs {
		if err := batch.Append(
			ev.ID,
			ev.TenantID,
			string(ev.Kind),
			ev.Amount,
			ev.Category,
			string(ev.Outcome),
			ev.OccurredAt.UTC(),
		); err != nil {
			batch.Abort()
			return 0, fmt.Errorf("clickhouse: append %s: %w", ev.ID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("clickhouse: send batch: %w", err)
	}
	return len(evs), nil
}

func (c *ClickHouse) Count(ctx context.Context, tenant string) (int, error) {
	var n uint64
	if err := c.conn.QueryRow(ctx, `SELECT count() FROM payments FINAL WHERE tenant_id = ?`, tenant).Scan(&n); err != nil {
		return 0, fmt.Errorf("clickhouse: count: %w", err)
	}
	return int(n), nil
}

func (c *ClickHouse) Clear(ctx context.Context, tenant string) error {
	if err := c.conn.Exec(ctx, `DELETE FROM payments WHERE tenant_id = ?`, tenant); err != nil {
		return fmt.Errorf("clickhouse: clear %s: %w", tenant, err)
	}
	return nil
}

func (c *ClickHouse) Recent(ctx context.Context, tenant string, limit int) ([]*event.Event, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT id, tenant_id, kind, toString(amount), category, outcome, occurred_at
		FROM payments FINAL
		WHERE tenant_id = ?
		ORDER BY occurred_at DESC
		LIMIT ?
	`, tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("clickhouse: query recent: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		var (
			ev     event.Event
			kind   string
			amount string
			outc   string
			at     time.Time
		)
		if err := rows.Scan(&ev.ID, &ev.TenantID, &kind, &amount, &ev.Category, &outc, &at); err != nil {
			return nil, fmt.Errorf("clickhouse: scan: %w", err)
		}
		if ev.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("clickhouse: amount of %s: %w", ev.ID, err)
		}
		ev.Kind = event.Kind(kind)
		ev.Outcome = event.Outcome(outc)
		ev.OccurredAt = at.UTC()
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
