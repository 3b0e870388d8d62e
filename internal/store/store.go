// Package store persists payment events. The core pipeline never reads from a
// store on its hot path; stores back seeding, cold start and the recent-payments
// view, and receive live events through the write-behind sink.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/paystream/internal/config"
	"github.com/gyaneshwarpardhi/paystream/internal/event"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("store: unknown driver")

// Store is a durable event store. Implementations ignore writes of an id
// they already hold.
type Store interface {
	Write(ctx context.Context, ev *event.Event) error
	// BulkInsert writes events and returns how many were newly stored.
	BulkInsert(ctx context.Context, evs []*event.Event) (int, error)
	Count(ctx context.Context, tenant string) (int, error)
	// Clear deletes every event of the tenant.
	Clear(ctx context.Context, tenant string) error
	// Recent returns up to limit events of the tenant, newest first.
	Recent(ctx context.Context, tenant string, limit int) ([]*event.Event, error)
	Close() error
}

// Open connects the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConf) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		return NewPostgres(ctx, cfg.DSN)
	case "clickhouse":
		return NewClickHouse(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
