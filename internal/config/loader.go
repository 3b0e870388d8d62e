package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader reads a YAML config file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever a valid config is reloaded.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file changes.
// Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						slog.Warn("config reload skipped", "path", l.path, "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "err", err)
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read of the config file. An invalid file
// leaves the current config in place.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Config), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied, as if from an empty file.
func Default() *Config {
	cfg := &Config{Version: "v1"}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued settings.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.Addr == "" {
		s.Addr = ":8080"
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.DefaultTenant == "" {
		s.DefaultTenant = "tenant_1"
	}

	g := &cfg.Generator
	if g.Tenant == "" {
		g.Tenant = s.DefaultTenant
	}
	if g.IntervalMs == 0 {
		g.IntervalMs = 2000
	}
	if len(g.Categories) == 0 {
		g.Categories = []string{"card", "bank_transfer", "crypto", "paypal"}
	}
	if len(g.Outcomes) == 0 {
		g.Outcomes = []string{"success", "success", "success", "success", "failed"}
	}
	if g.AmountMin == 0 && g.AmountMax == 0 {
		g.AmountMin, g.AmountMax = 100, 500
	}
	if g.SeedCount == 0 {
		g.SeedCount = 1000
	}
	if g.SeedWindowDays == 0 {
		g.SeedWindowDays = 30
	}

	p := &cfg.Pipeline
	if p.QueueCapacity == 0 {
		p.QueueCapacity = 1024
	}
	if p.DedupCapacity == 0 {
		p.DedupCapacity = 1000
	}
	if p.LogCapacity == 0 {
		p.LogCapacity = 500
	}
	if p.PageSize == 0 {
		p.PageSize = 10
	}
	if p.Location == "" {
		p.Location = "UTC"
	}

	st := &cfg.Store
	if st.Driver == "" {
		st.Driver = "memory"
	}
	if st.RecentLimit == 0 {
		st.RecentLimit = 100
	}
	if st.WriteQueue == 0 {
		st.WriteQueue = 1024
	}
	if st.WriteWorkers == 0 {
		st.WriteWorkers = 2
	}
	if st.RetryAttempts == 0 {
		st.RetryAttempts = 3
	}
	if st.RetryPerSecond == 0 {
		st.RetryPerSecond = 5
	}

	a := &cfg.Bridges.AMQP
	if a.Exchange == "" {
		a.Exchange = "payments"
	}
	if a.Queue == "" {
		a.Queue = "paystream.ingest"
	}
	if a.RoutingKey == "" {
		a.RoutingKey = "payments.ingest"
	}
	if a.ForwardKey == "" {
		a.ForwardKey = "payments.broadcast"
	}
	r := &cfg.Bridges.Redis
	if r.Addr == "" {
		r.Addr = "localhost:6379"
	}
	if r.Channel == "" {
		r.Channel = "paystream:events"
	}
	if r.Ingest == "" {
		r.Ingest = "paystream:ingest"
	}
	m := &cfg.Bridges.MQTT
	if m.Broker == "" {
		m.Broker = "tcp://localhost:1883"
	}
	if m.ClientID == "" {
		m.ClientID = "paystream"
	}
	if m.Topic == "" {
		m.Topic = "paystream/events"
	}
}
