package bridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/gyaneshwarpardhi/paystream/internal/config"
	"github.com/gyaneshwarpardhi/paystream/internal/event"
	"github.com/gyaneshwarpardhi/paystream/internal/metrics"
	"github.com/gyaneshwarpardhi/paystream/internal/stream"
)

const connectTimeout = 10 * time.Second

// MQTT forwards live stream frames to <Topic>/<tenant> for device and edge
// dashboards.
type MQTT struct {
	cfg    config.MQTTConf
	client mqtt.Client

	mu  sync.Mutex
	sub *stream.Subscription
}

// NewMQTT connects to the broker.
func NewMQTT(cfg config.MQTTConf) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)
	client := mqtt.NewClient(opts)

	token := client.Connect()
	if ok := token.WaitTimeout(connectTimeout); !ok {
		return nil, fmt.Errorf("mqtt: connect %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", cfg.Broker, err)
	}
	slog.Info("mqtt bridge connected", "broker", cfg.Broker, "topic", cfg.Topic)
	return &MQTT{cfg: cfg, client: client}, nil
}

// Forward subscribes to ch and publishes an envelope per event.
func (m *MQTT) Forward(ch *stream.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub != nil {
		return
	}
	m.sub = ch.Subscribe(stream.WithName("bridge-mqtt"), stream.WithHandler(m.publish))
}

func (m *MQTT) publish(ev *event.Event) {
	body, err := json.Marshal(event.Wrap(ev, time.Now()))
	if err != nil {
		metrics.BridgeMessages.WithLabelValues("mqtt", "out", "error").Inc()
		return
	}
	token := m.client.Publish(m.cfg.Topic+"/"+ev.TenantID, m.cfg.QoS, false, body)
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		metrics.BridgeMessages.WithLabelValues("mqtt", "out", "error").Inc()
		slog.Warn("mqtt forward failed", "id", ev.ID, "err", token.Error())
		return
	}
	metrics.BridgeMessages.WithLabelValues("mqtt", "out", "ok").Inc()
}

// Close detaches the forwarder and disconnects.
func (m *MQTT) Close() error {
	m.mu.Lock()
	if m.sub != nil {
		m.sub.Close()
		m.sub = nil
	}
	m.mu.Unlock()
	m.client.Disconnect(250)
	return nil
}
