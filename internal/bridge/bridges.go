package bridge

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/gyaneshwarpardhi/paystream/internal/config"
	"github.com/gyaneshwarpardhi/paystream/internal/ingest"
	"github.com/gyaneshwarpardhi/paystream/internal/stream"
)

type consumer interface {
	Consume(ctx context.Context, in *ingest.Intake) error
}

// Set is the group of bridges enabled in config.
type Set struct {
	closers []io.Closer
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Start connects every enabled bridge, attaches forwarders to ch and runs
// consumers into in. A bridge that cannot connect is logged and skipped.
func Start(ctx context.Context, cfg config.BridgesConf, ch *stream.Channel, in *ingest.Intake) *Set {
	ctx, cancel := context.WithCancel(ctx)
	s := &Set{cancel: cancel}

	if cfg.AMQP.Enabled {
		if a, err := DialAMQP(cfg.AMQP); err != nil {
			slog.Warn("amqp bridge disabled", "err", err)
		} else {
			s.attach(ctx, "amqp", a, cfg.AMQP.Forward, cfg.AMQP.Consume, ch, in, a.Forward)
		}
	}
	if cfg.Redis.Enabled {
		if r, err := NewRedis(ctx, cfg.Redis); err != nil {
			slog.Warn("redis bridge disabled", "err", err)
		} else {
			s.attach(ctx, "redis", r, cfg.Redis.Forward, cfg.Redis.Consume, ch, in, r.Forward)
		}
	}
	if cfg.MQTT.Enabled {
		if m, err := NewMQTT(cfg.MQTT); err != nil {
			slog.Warn("mqtt bridge disabled", "err", err)
		} else {
			m.Forward(ch)
			s.closers = append(s.closers, m)
		}
	}
	return s
}

func (s *Set) attach(ctx context.Context, name string, b io.Closer, forward, consume bool,
	ch *stream.Channel, in *ingest.Intake, fwd func(*stream.Channel)) {
	s.closers = append(s.closers, b)
	if forward {
		fwd(ch)
	}
	c, ok := b.(consumer)
	if !consume || !ok {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := c.Consume(ctx, in); err != nil {
			slog.Warn("bridge consumer stopped", "bridge", name, "err", err)
		}
	}()
}

// Len returns the number of connected bridges.
func (s *Set) Len() int { return len(s.closers) }

// Close stops consumers and closes every bridge.
func (s *Set) Close() {
	s.cancel()
	s.wg.Wait()
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			slog.Warn("bridge close", "err", err)
		}
	}
}
