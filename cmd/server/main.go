package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/paystream/internal/api"
	"github.com/gyaneshwarpardhi/paystream/internal/bridge"
	"github.com/gyaneshwarpardhi/paystream/internal/config"
	"github.com/gyaneshwarpardhi/paystream/internal/generator"
	"github.com/gyaneshwarpardhi/paystream/internal/ingest"
	"github.com/gyaneshwarpardhi/paystream/internal/pipeline"
	"github.com/gyaneshwarpardhi/paystream/internal/store"
	"github.com/gyaneshwarpardhi/paystream/internal/stream"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	cfgPath := flag.String("config", "configs/paystream.yaml", "Path to YAML config")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}
	if l, err := config.ParseLevel(cfg.Server.LogLevel); err == nil {
		level.Set(l)
	}
	if *addr == "" {
		*addr = cfg.Server.Addr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Store + write-behind sink ────────────────────────────────────────────
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	sink := store.NewWriteBehind(st, store.WriteBehindOptions{
		Workers:        cfg.Store.WriteWorkers,
		QueueSize:      cfg.Store.WriteQueue,
		RetryAttempts:  cfg.Store.RetryAttempts,
		RetryPerSecond: cfg.Store.RetryPerSecond,
	})
	slog.Info("store opened", "driver", cfg.Store.Driver, "workers", cfg.Store.WriteWorkers)

	// ── Channel + pipelines ──────────────────────────────────────────────────
	loc, err := cfg.Pipeline.Loc()
	if err != nil {
		slog.Error("invalid pipeline location", "location", cfg.Pipeline.Location, "err", err)
		os.Exit(1)
	}
	ch := stream.NewChannel(cfg.Pipeline.QueueCapacity)
	in := ingest.New(ch, sink)
	hub := pipeline.NewHub(ch, st, pipeline.Options{
		QueueCapacity: cfg.Pipeline.QueueCapacity,
		DedupCapacity: cfg.Pipeline.DedupCapacity,
		LogCapacity:   cfg.Pipeline.LogCapacity,
		Location:      loc,
	}, cfg.Server.DefaultTenant)
	if _, err := hub.Create(ctx, "live", ""); err != nil {
		slog.Error("failed to create live pipeline", "err", err)
		os.Exit(1)
	}

	// ── Generator ────────────────────────────────────────────────────────────
	gen := generator.New(cfg.Generator, generator.Options{
		Store:     st,
		Sink:      sink,
		Publisher: ch,
	})
	gen.OnReset(hub.ResetTenant)
	if cfg.Generator.Enabled {
		gen.Start(ctx)
	}

	// ── Broker bridges ───────────────────────────────────────────────────────
	bridges := bridge.Start(ctx, cfg.Bridges, ch, in)
	slog.Info("bridges started", "count", bridges.Len())

	// ── Hot-reload watcher ───────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		gen.Configure(newCfg.Generator)
		if l, err := config.ParseLevel(newCfg.Server.LogLevel); err == nil {
			level.Set(l)
		}
		slog.Info("config hot-reloaded", "version", newCfg.Version)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	handler := api.New(api.Deps{
		Channel:   ch,
		Hub:       hub,
		Intake:    in,
		Generator: gen,
		Store:     st,
		Loader:    loader,
		Backlog:   sink,
	})
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	gen.Stop()
	bridges.Close()
	hub.Close()
	sink.Close()
	ch.Close()
	cancel()
	if err := st.Close(); err != nil {
		slog.Warn("store close", "err", err)
	}
	slog.Info("goodbye")
}
