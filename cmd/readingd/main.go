// readingd ingests batches of timestamped device counter readings, folds
// them into per-device running aggregates and serves the aggregates over
// HTTP, with optional MQTT ingest/fan-out and InfluxDB export.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/readingd/internal/api"
	"github.com/nerrad567/readingd/internal/infrastructure/config"
	"github.com/nerrad567/readingd/internal/infrastructure/logging"
	"github.com/nerrad567/readingd/internal/ingest"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled. Deferred
// closes run in reverse order of construction.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting readingd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"backend", cfg.Storage.Backend,
		"fingerprints", cfg.Storage.Fingerprints,
	)

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service := ingest.NewService(
		ingest.NewValidator(st.fingerprints),
		ingest.NewEngine(st.devices),
		ingest.NewMetrics(registry),
	)
	service.SetLogger(log.With("component", "ingest"))

	hub := api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
	service.AddNotifier(hub)
	go hub.Run(ctx)

	checks := st.checks

	closeMQTT, err := startMQTT(ctx, cfg.MQTT, service, checks, log)
	if err != nil {
		return err
	}
	defer closeMQTT()

	closeInflux, err := startInfluxDB(cfg.InfluxDB, service, checks, log)
	if err != nil {
		return err
	}
	defer closeInflux()

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.With("component", "api"),
		Ingester: service,
		Reader:   ingest.NewQuery(st.devices),
		Hub:      hub,
		Registry: registry,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// getConfigPath returns READINGD_CONFIG when set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("READINGD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
