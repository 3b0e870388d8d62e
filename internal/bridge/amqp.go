// Package bridge connects the broadcast channel to external brokers.
// Forwarders attach to the channel as ordinary subscriptions, so a slow
// broker only backs up its own intake queue. Consumers feed decoded events
// through the same intake as HTTP ingestion.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"

	"github.com/gyaneshwarpardhi/paystream/internal/config"
	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/ingest"
	"github.com/gyaneshwarpardhi/paystream/internal/metrics"
	"github.com/gyaneshwarpardhi/paystream/internal/stream"
)

const publishTimeout = 5 * time.Second

// AMQP bridges a RabbitMQ topic exchange. Consumed messages come from a
// durable queue bound with RoutingKey; forwarded events are published with
// ForwardKey.<kind>, so the two directions never loop.
type AMQP struct {
	cfg     config.AMQPConf
	conn    *amqp.Connection
	pubCh   *amqp.Channel
	conCh   *amqp.Channel
	limiter *rate.Limiter

	mu  sync.Mutex
	sub *stream.Subscription
}

// DialAMQP connects and declares the exchange, queue and binding.
func DialAMQP(cfg config.AMQPConf) (*AMQP, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	conCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}

	if err := pubCh.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %s: %w", cfg.Exchange, err)
	}
	q, err := conCh.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: declare queue %s: %w", cfg.Queue, err)
	}
	if err := conCh.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: bind queue: %w", err)
	}
	if err := conCh.Qos(64, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: qos: %w", err)
	}

	limit := rate.Inf
	if cfg.IngestPerSecond > 0 {
		limit = rate.Limit(cfg.IngestPerSecond)
	}
	slog.Info("amqp bridge connected", "exchange", cfg.Exchange, "queue", cfg.Queue, "routing_key", cfg.RoutingKey)
	return &AMQP{
		cfg:     cfg,
		conn:    conn,
		pubCh:   pubCh,
		conCh:   conCh,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Forward subscribes to ch and publishes every event to the exchange.
func (a *AMQP) Forward(ch *stream.Channel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sub != nil {
		return
	}
	a.sub = ch.Subscribe(stream.WithName("bridge-amqp"), stream.WithHandler(a.publish))
}

func (a *AMQP) publish(ev *event.Event) {
	body, err := event.Encode(ev)
	if err != nil {
		metrics.BridgeMessages.WithLabelValues("amqp", "out", "error").Inc()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = a.pubCh.PublishWithContext(ctx,
		a.cfg.Exchange,
		a.cfg.ForwardKey+"."+string(ev.Kind),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Type:         ev.Type(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		metrics.BridgeMessages.WithLabelValues("amqp", "out", "error").Inc()
		slog.Warn("amqp forward failed", "id", ev.ID, "err", err)
		return
	}
	metrics.BridgeMessages.WithLabelValues("amqp", "out", "ok").Inc()
}

// Consume reads the ingest queue until ctx is done. Well-formed messages are
// accepted and acked; malformed ones are rejected without requeue.
func (a *AMQP) Consume(ctx context.Context, in *ingest.Intake) error {
	msgs, err := a.conCh.Consume(
		a.cfg.Queue, // queue
		"",          // consumer tag (auto-generated)
		false,       // auto-ack (we'll ack manually)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("amqp: register consumer: %w", err)
	}
	slog.Info("amqp consumer started", "queue", a.cfg.Queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("amqp: delivery channel closed")
			}
			if err := a.limiter.Wait(ctx); err != nil {
				msg.Nack(false, true)
				return nil
			}
			if _, err := in.AcceptJSON(msg.Body, "amqp"); err != nil {
				metrics.BridgeMessages.WithLabelValues("amqp", "in", "rejected").Inc()
				msg.Reject(false)
				continue
			}
			metrics.BridgeMessages.WithLabelValues("amqp", "in", "ok").Inc()
			msg.Ack(false)
		}
	}
}

// Close detaches the forwarder and closes the connection.
func (a *AMQP) Close() error {
	a.mu.Lock()
	if a.sub != nil {
		a.sub.Close()
		a.sub = nil
	}
	a.mu.Unlock()
	return a.conn.Close()
}
