package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/apibadges/server/internal/alerts"
	"github.com/obsidianstack/apibadges/server/internal/api"
	"github.com/obsidianstack/apibadges/server/internal/auth"
	"github.com/obsidianstack/apibadges/server/internal/config"
	"github.com/obsidianstack/apibadges/server/internal/receiver"
	"github.com/obsidianstack/apibadges/server/internal/store"
	"github.com/obsidianstack/apibadges/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve the dashboard's static files from this directory; empty disables it")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("apibadges-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	sc := cfg.Server
	slog.Info("config loaded",
		"http_port", sc.HTTPPort,
		"auth_mode", sc.Auth.Mode,
		"snapshot_ttl", sc.Snapshot.TTL,
		"alert_rules", len(sc.Alerts.Rules),
		"webhooks", len(sc.Alerts.Webhooks),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New(sc.Snapshot.TTL, sc.Usage.History)
	alertEngine := alerts.New(sc.Alerts)
	hub := ws.New(st, sc.WS.Interval)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		api.NewCollector(st),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	apiHandler := api.New(st, api.Options{
		Alerts:  alertEngine,
		Ingest:  receiver.New(st, receiver.Chain(alertEngine, hub)),
		Protect: auth.APIKey(sc.Auth.Mode, sc.Auth.EffectiveHeader(), sc.Auth.Key()),
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/ws/stream", hub)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if *uiDir != "" {
		mux.Handle("/", spa(*uiDir))
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("apibadges-server shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
}

// spa serves dir, falling back to index.html for unknown paths so client-side
// routes resolve.
func spa(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		files.ServeHTTP(w, r)
	})
}
