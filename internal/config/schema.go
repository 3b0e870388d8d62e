package config

import (
	"time"
)

// Config is the top-level YAML structure.
type Config struct {
	Version   string        `yaml:"version"`
	Server    ServerConf    `yaml:"server"`
	Generator GeneratorConf `yaml:"generator"`
	Pipeline  PipelineConf  `yaml:"pipeline"`
	Store     StoreConf     `yaml:"store"`
	Bridges   BridgesConf   `yaml:"bridges"`
}

// ServerConf holds HTTP and process settings.
type ServerConf struct {
	Addr          string `yaml:"addr"`
	LogLevel      string `yaml:"log_level"` // debug | info | warn | error
	DefaultTenant string `yaml:"default_tenant"`
}

// GeneratorConf drives the payment simulator and the seed operations.
type GeneratorConf struct {
	Enabled        bool     `yaml:"enabled"`
	Tenant         string   `yaml:"tenant"`
	IntervalMs     int      `yaml:"interval_ms"`
	Categories     []string `yaml:"categories"`
	Outcomes       []string `yaml:"outcomes"` // drawn uniformly; repeat an entry to weight it
	AmountMin      int64    `yaml:"amount_min"`
	AmountMax      int64    `yaml:"amount_max"`
	SeedCount      int      `yaml:"seed_count"`
	SeedWindowDays int      `yaml:"seed_window_days"`
}

// Interval returns the tick cadence.
func (g GeneratorConf) Interval() time.Duration {
	return time.Duration(g.IntervalMs) * time.Millisecond
}

// PipelineConf sizes the per-subscriber pipeline.
type PipelineConf struct {
	QueueCapacity int    `yaml:"queue_capacity"`
	DedupCapacity int    `yaml:"dedup_capacity"`
	LogCapacity   int    `yaml:"log_capacity"`
	PageSize      int    `yaml:"page_size"`
	Location      string `yaml:"location"` // IANA zone used for trend bucket boundaries
}

// Loc resolves the configured time zone.
func (p PipelineConf) Loc() (*time.Location, error) {
	return time.LoadLocation(p.Location)
}

// StoreConf selects and tunes the durable store.
type StoreConf struct {
	Driver         string  `yaml:"driver"` // memory | postgres | clickhouse
	DSN            string  `yaml:"dsn"`
	RecentLimit    int     `yaml:"recent_limit"`
	WriteQueue     int     `yaml:"write_queue"`
	WriteWorkers   int     `yaml:"write_workers"`
	RetryAttempts  int     `yaml:"retry_attempts"`
	RetryPerSecond float64 `yaml:"retry_per_second"`
}

// BridgesConf configures broker bridges.
type BridgesConf struct {
	AMQP  AMQPConf  `yaml:"amqp"`
	Redis RedisConf `yaml:"redis"`
	MQTT  MQTTConf  `yaml:"mqtt"`
}

// AMQPConf configures the RabbitMQ bridge.
type AMQPConf struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	Queue      string `yaml:"queue"`
	RoutingKey string `yaml:"routing_key"` // binds the ingest queue
	ForwardKey string `yaml:"forward_key"` // prefix for forwarded events, suffixed with the kind
	Consume    bool   `yaml:"consume"`
	Forward    bool   `yaml:"forward"`
	// IngestPerSecond throttles consumed messages; 0 means unlimited.
	IngestPerSecond float64 `yaml:"ingest_per_second"`
}

// RedisConf configures the Redis Pub/Sub bridge.
type RedisConf struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`        // forwarded events
	Ingest   string `yaml:"ingest_channel"` // consumed events
	Consume  bool   `yaml:"consume"`
	Forward  bool   `yaml:"forward"`
}

// MQTTConf configures the MQTT forwarder.
type MQTTConf struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}
