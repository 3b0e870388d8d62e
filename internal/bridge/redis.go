package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/gyaneshwarpardhi/paystream/internal/config"
	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/ingest"
	"github.com/gyaneshwarpardhi/paystream/internal/metrics"
	"github.com/gyaneshwarpardhi/paystream/internal/stream"
)

// Redis bridges Redis Pub/Sub: events are forwarded to Channel and
// consumed from Ingest.
type Redis struct {
	cfg config.RedisConf
	rdb *redis.Client

	mu  sync.Mutex
	sub *stream.Subscription
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg config.RedisConf) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	slog.Info("redis bridge connected", "addr", cfg.Addr, "channel", cfg.Channel)
	return &Redis{cfg: cfg, rdb: rdb}, nil
}

// Forward subscribes to ch and publishes every event to the forward channel.
func (r *Redis) Forward(ch *stream.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return
	}
	r.sub = ch.Subscribe(stream.WithName("bridge-redis"), stream.WithHandler(r.publish))
}

func (r *Redis) publish(ev *event.Event) {
	body, err := event.Encode(ev)
	if err != nil {
		metrics.BridgeMessages.WithLabelValues("redis", "out", "error").Inc()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.rdb.Publish(ctx, r.cfg.Channel, body).Err(); err != nil {
		metrics.BridgeMessages.WithLabelValues("redis", "out", "error").Inc()
		slog.Warn("redis forward failed", "id", ev.ID, "err", err)
		return
	}
	metrics.BridgeMessages.WithLabelValues("redis", "out", "ok").Inc()
}

// Consume reads the ingest channel until ctx is done.
func (r *Redis) Consume(ctx context.Context, in *ingest.Intake) error {
	ps := r.rdb.Subscribe(ctx, r.cfg.Ingest)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", r.cfg.Ingest, err)
	}
	slog.Info("redis consumer started", "channel", r.cfg.Ingest)

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if _, err := in.AcceptJSON([]byte(msg.Payload), "redis"); err != nil {
				metrics.BridgeMessages.WithLabelValues("redis", "in", "rejected").Inc()
				continue
			}
			metrics.BridgeMessages.WithLabelValues("redis", "in", "ok").Inc()
		}
	}
}

// Close detaches the forwarder and closes the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.sub != nil {
		r.sub.Close()
		r.sub = nil
	}
	r.mu.Unlock()
	return r.rdb.Close()
}
