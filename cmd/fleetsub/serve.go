package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pruett/fleet-sub000/internal/config"
	"github.com/pruett/fleet-sub000/internal/observability"
	"github.com/pruett/fleet-sub000/internal/transport"
	"github.com/pruett/fleet-sub000/internal/watcher"
)

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		Endpoint:     cfg.Tracing.Endpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Attributes:   cfg.Tracing.Attributes,
	})
	defer shutdownTracer(context.Background())

	watchers := watcher.NewRegistry()
	resolver := sessionFileResolver(cfg.SessionsRoot)
	hub := transport.NewHub(resolver, watchers)
	hub.SetMetrics(metrics)
	hub.SetTracer(tracer)
	hub.SetWatchDefaults(cfg.Watcher.DebounceMs, cfg.Watcher.MaxWaitMs)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "server starting", "addr", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sigCh:
		logger.Info(context.Background(), "shutdown signal received")
	}

	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sessionFileResolver maps a sessionId to its transcript file under root,
// the convention used by coding-agent CLIs that store one JSONL file per
// session id.
func sessionFileResolver(root string) transport.SessionResolver {
	return func(sessionID string) (string, bool) {
		path := filepath.Join(root, sessionID+".jsonl")
		if _, err := os.Stat(path); err != nil {
			return "", false
		}
		return path, true
	}
}
