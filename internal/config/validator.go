package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var knownOutcomes = map[string]bool{"success": true, "failed": true, "refunded": true}

// forwardedKinds are the suffixes the AMQP bridge appends to forward_key.
var forwardedKinds = []string{"received", "failed", "refunded"}

// Validate checks the config for:
//   - Required fields and positive sizes
//   - Known outcome names, store driver, log level and time zone
//   - Bridge settings for every enabled bridge
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if _, err := ParseLevel(cfg.Server.LogLevel); err != nil {
		add("server.log_level: %v", err)
	}

	g := cfg.Generator
	if g.IntervalMs < 0 {
		add("generator.interval_ms must not be negative")
	}
	if len(g.Categories) == 0 {
		add("generator.categories must not be empty")
	}
	for i, c := range g.Categories {
		if strings.TrimSpace(c) == "" {
			add("generator.categories[%d] is empty", i)
		}
	}
	for i, o := range g.Outcomes {
		if !knownOutcomes[o] {
			add("generator.outcomes[%d]: unknown outcome %q", i, o)
		}
	}
	if g.AmountMin < 0 || g.AmountMax < g.AmountMin {
		add("generator.amount range [%d, %d] is invalid", g.AmountMin, g.AmountMax)
	}
	if g.SeedCount < 0 {
		add("generator.seed_count must not be negative")
	}
	if g.SeedWindowDays < 1 {
		add("generator.seed_window_days must be at least 1")
	}

	p := cfg.Pipeline
	for name, v := range map[string]int{
		"queue_capacity": p.QueueCapacity,
		"dedup_capacity": p.DedupCapacity,
		"log_capacity":   p.LogCapacity,
		"page_size":      p.PageSize,
	} {
		if v < 1 {
			add("pipeline.%s must be positive", name)
		}
	}
	if _, err := time.LoadLocation(p.Location); err != nil {
		add("pipeline.location: %v", err)
	}

	st := cfg.Store
	switch st.Driver {
	case "memory":
	case "postgres", "clickhouse":
		if st.DSN == "" {
			add("store.dsn is required for driver %s", st.Driver)
		}
	default:
		add("store.driver: unknown driver %q", st.Driver)
	}
	if st.WriteWorkers < 1 || st.WriteQueue < 1 {
		add("store.write_workers and store.write_queue must be positive")
	}

	b := cfg.Bridges
	if b.AMQP.Enabled && b.AMQP.URL == "" {
		add("bridges.amqp.url is required when enabled")
	}
	if b.Redis.Enabled && b.Redis.Addr == "" {
		add("bridges.redis.addr is required when enabled")
	}
	if a := b.AMQP; a.Enabled && a.Consume && a.Forward {
		for _, kind := range forwardedKinds {
			if key := a.ForwardKey + "." + kind; topicMatch(a.RoutingKey, key) {
				add("bridges.amqp.routing_key %q matches forwarded key %q", a.RoutingKey, key)
				break
			}
		}
	}
	if r := b.Redis; r.Enabled && r.Consume && r.Forward && r.Channel == r.Ingest {
		add("bridges.redis.channel and ingest_channel must differ when consuming and forwarding")
	}
	if b.MQTT.Enabled && b.MQTT.QoS > 2 {
		add("bridges.mqtt.qos must be 0, 1 or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return lvl, nil
}

// topicMatch reports whether an AMQP topic binding pattern matches key.
// "*" matches exactly one word and "#" matches zero or more.
func topicMatch(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(p, k []string) bool {
	if len(p) == 0 {
		return len(k) == 0
	}
	switch p[0] {
	case "#":
		for i := 0; i <= len(k); i++ {
			if matchWords(p[1:], k[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(k) > 0 && matchWords(p[1:], k[1:])
	}
	return len(k) > 0 && p[0] == k[0] && matchWords(p[1:], k[1:])
}
