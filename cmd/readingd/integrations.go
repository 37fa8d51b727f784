package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/readingd/internal/api"
	"github.com/nerrad567/readingd/internal/infrastructure/config"
	"github.com/nerrad567/readingd/internal/infrastructure/influxdb"
	"github.com/nerrad567/readingd/internal/infrastructure/logging"
	"github.com/nerrad567/readingd/internal/infrastructure/mqtt"
	"github.com/nerrad567/readingd/internal/ingest"
	"github.com/nerrad567/readingd/internal/relay"
)

// startMQTT connects to the broker and starts the ingest bridge. The
// returned func undoes both; it is a no-op when MQTT is disabled.
func startMQTT(ctx context.Context, cfg config.MQTTConfig, service *ingest.Service,
	checks map[string]api.HealthChecker, log *logging.Logger) (func(), error) {
	if !cfg.Enabled {
		log.Info("MQTT disabled")
		return func() {}, nil
	}

	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttLog := log.With("component", "mqtt")
	client.SetLogger(mqttLog)
	checks["mqtt"] = client
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", client.ClientID(),
	)

	bridge, err := relay.NewMQTTBridge(relay.BridgeOptions{
		Client:   client,
		Ingester: service,
		QoS:      byte(cfg.QoS), // #nosec G115 -- validated to 0..2
		Logger:   mqttLog,
	})
	if err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("creating MQTT bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("starting MQTT bridge: %w", err)
	}
	service.AddNotifier(bridge)

	return func() {
		log.Info("disconnecting from MQTT")
		if stopErr := bridge.Stop(); stopErr != nil {
			log.Warn("error stopping MQTT bridge", "error", stopErr)
		}
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}, nil
}

// startInfluxDB connects the reading export when enabled.
func startInfluxDB(cfg config.InfluxDBConfig, service *ingest.Service,
	checks map[string]api.HealthChecker, log *logging.Logger) (func(), error) {
	if !cfg.Enabled {
		log.Info("InfluxDB disabled")
		return func() {}, nil
	}

	client, err := influxdb.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	checks["influxdb"] = client
	service.AddNotifier(relay.NewInfluxExporter(client))
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)

	return func() {
		log.Info("closing InfluxDB connection")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing InfluxDB", "error", closeErr)
		}
	}, nil
}
