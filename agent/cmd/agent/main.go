package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/apibadges/agent/internal/config"
	"github.com/obsidianstack/apibadges/agent/internal/metricstore"
	"github.com/obsidianstack/apibadges/agent/internal/monitor"
	"github.com/obsidianstack/apibadges/agent/internal/prober"
	"github.com/obsidianstack/apibadges/agent/internal/scheduler"
	"github.com/obsidianstack/apibadges/agent/internal/security"
	"github.com/obsidianstack/apibadges/agent/internal/shipper"
	"github.com/obsidianstack/apibadges/agent/internal/storage"
	"github.com/obsidianstack/apibadges/agent/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("apibadges-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"agent_id", cfg.Agent.ID,
		"server_endpoint", cfg.Agent.ServerEndpoint,
		"targets", len(cfg.Agent.Targets),
		"probe_interval", cfg.Agent.ProbeInterval,
		"storage", cfg.Agent.Storage.Backend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	adapter, closeStorage := storage.Open(ctx, storage.Config{
		Backend: cfg.Agent.Storage.Backend,
		Path:    cfg.Agent.Storage.Path,
		DSN:     cfg.Agent.Storage.DSN(),
	})
	defer closeStorage() //nolint:errcheck

	metrics := telemetry.New()
	ship := shipper.New(cfg.Agent, metrics)

	mon := monitor.New(monitor.Options{
		Prober:  prober.New(prober.NewRestyClient()),
		Store:   metricstore.New(adapter),
		Certs:   security.New(),
		Sink:    ship,
		Obs:     metrics,
		Timeout: cfg.Agent.ProbeTimeout,
	})
	mon.SetTargets(monitor.ResolveTargets(cfg.Agent.Targets))
	if len(cfg.Agent.Targets) == 0 {
		slog.Warn("no targets configured, agent will idle until the config changes")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Run(gctx, cfg.Agent.ProbeInterval, cfg.Agent.ProbeSpacing, mon.Keys, mon.Run)
		return nil
	})

	g.Go(func() error {
		ship.Run(gctx)
		return nil
	})

	g.Go(func() error {
		// Target changes apply from the next round; intervals need a restart.
		err := config.Watch(gctx, *configPath, func(updated *config.Config) {
			mon.SetTargets(monitor.ResolveTargets(updated.Agent.Targets))
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
		return nil
	})

	if addr := cfg.Agent.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("agent stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("apibadges-agent shut down")
}
