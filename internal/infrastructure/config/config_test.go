package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: sqlite
  fingerprints: memory
database:
  path: "/tmp/readingd-test.db"
  busy_timeout: 2
api:
  port: 9090
mqtt:
  enabled: true
  broker:
    host: "broker.local"
  qos: 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/readingd-test.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Storage.Fingerprints != FingerprintsMemory {
		t.Errorf("Storage.Fingerprints = %q", cfg.Storage.Fingerprints)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.QoS != 2 {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	// Unset keys keep their defaults.
	if !cfg.Database.WALMode {
		t.Error("Database.WALMode default lost")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}

	if cfg.Storage.Backend != BackendSQLite || cfg.Storage.Fingerprints != FingerprintsSQL {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
	if cfg.MQTT.Enabled || cfg.InfluxDB.Enabled {
		t.Error("optional integrations should default to disabled")
	}
	if cfg.GetReadTimeout().Seconds() != 30 || cfg.GetIdleTimeout().Seconds() != 60 {
		t.Errorf("timeouts = %v / %v", cfg.GetReadTimeout(), cfg.GetIdleTimeout())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("READINGD_DATABASE_PATH", "/var/lib/readingd/env.db")
	t.Setenv("READINGD_API_PORT", "3000")
	t.Setenv("READINGD_API_HOST", "127.0.0.1")
	t.Setenv("READINGD_LOG_LEVEL", "debug")
	t.Setenv("READINGD_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("READINGD_MQTT_PASSWORD", "secret")

	path := writeConfig(t, `
storage:
  fingerprints: redis
database:
  path: "/from/file.db"
api:
  port: 8081
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/readingd/env.db" {
		t.Errorf("Database.Path = %q, env should win", cfg.Database.Path)
	}
	if cfg.Addr() != "127.0.0.1:3000" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if cfg.Redis.URL != "redis://cache:6379/0" {
		t.Errorf("Redis.URL = %q", cfg.Redis.URL)
	}
	if cfg.MQTT.Auth.Password != "secret" {
		t.Error("MQTT password not overridden")
	}
}

func TestLoad_BadEnvPort(t *testing.T) {
	t.Setenv("READINGD_API_PORT", "eighty")
	if _, err := Load(""); err == nil {
		t.Error("Load() expected error for non-numeric READINGD_API_PORT")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "invalid: [yaml: content")); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }, "storage.backend"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, "postgres.dsn"},
		{"postgres with dsn", func(c *Config) {
			c.Storage.Backend = BackendPostgres
			c.Postgres.DSN = "postgres://localhost/readingd"
		}, ""},
		{"unknown fingerprint store", func(c *Config) { c.Storage.Fingerprints = "disk" }, "storage.fingerprints"},
		{"redis without url", func(c *Config) { c.Storage.Fingerprints = FingerprintsRedis }, "redis.url"},
		{"port low", func(c *Config) { c.API.Port = 0 }, "api.port"},
		{"port high", func(c *Config) { c.API.Port = 70000 }, "api.port"},
		{"body limit", func(c *Config) { c.API.MaxBodyBytes = 0 }, "api.max_body_bytes"},
		{"qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"influx incomplete", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateReportsAll(t *testing.T) {
	cfg := defaultConfig()
	cfg.API.Port = 0
	cfg.MQTT.QoS = 9

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	if !strings.Contains(err.Error(), "api.port") || !strings.Contains(err.Error(), "mqtt.qos") {
		t.Errorf("Validate() = %v, want both problems", err)
	}
}
