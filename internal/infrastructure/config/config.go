package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	FingerprintsSQL    = "sql"
	FingerprintsRedis  = "redis"
	FingerprintsMemory = "memory"
)

// Config is the root configuration structure for readingd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig selects where device aggregates and fingerprints live.
type StorageConfig struct {
	// Backend holds device aggregates: "sqlite" or "postgres".
	Backend string `yaml:"backend"`

	// Fingerprints holds request fingerprints: "sql" (same database as
	// devices), "redis" or "memory".
	Fingerprints string `yaml:"fingerprints"`

	// ResetOnStart clears both stores before serving.
	ResetOnStart bool `yaml:"reset_on_start"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL settings.
type PostgresConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// RedisConfig contains Redis settings. Timeouts are in seconds.
type RedisConfig struct {
	URL          string `yaml:"url"`
	PoolSize     int    `yaml:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns"`
	DialTimeout  int    `yaml:"dial_timeout"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
	KeyPrefix    string `yaml:"key_prefix"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host         string           `yaml:"host"`
	Port         int              `yaml:"port"`
	MaxBodyBytes int64            `yaml:"max_body_bytes"`
	Timeouts     APITimeoutConfig `yaml:"timeouts"`
	CORS         CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains settings for the device update stream.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB export settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load builds the configuration.
//
// The loading order is:
//  1. Default values
//  2. YAML file values, when path is not empty
//  3. Environment variables (READINGD_SECTION_KEY)
//
// The result is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:      BackendSQLite,
			Fingerprints: FingerprintsSQL,
		},
		Database: DatabaseConfig{
			Path:        "./data/readingd.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 3600,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			DialTimeout:  5,
			ReadTimeout:  3,
			WriteTimeout: 3,
			KeyPrefix:    "readingd:fp:",
		},
		API: APIConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			MaxBodyBytes: 1 << 20,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "readingd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     1000,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies READINGD_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("READINGD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("READINGD_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("READINGD_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}

	if v := os.Getenv("READINGD_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("READINGD_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("READINGD_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	if v := os.Getenv("READINGD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("READINGD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("READINGD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("READINGD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("READINGD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, "postgres.dsn is required for the postgres backend (set READINGD_POSTGRES_DSN)")
		}
	default:
		errs = append(errs, "storage.backend must be sqlite or postgres")
	}

	switch c.Storage.Fingerprints {
	case FingerprintsSQL, FingerprintsMemory:
	case FingerprintsRedis:
		if c.Redis.URL == "" {
			errs = append(errs, "redis.url is required for redis fingerprints (set READINGD_REDIS_URL)")
		}
	default:
		errs = append(errs, "storage.fingerprints must be sql, redis or memory")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.MaxBodyBytes <= 0 {
		errs = append(errs, "api.max_body_bytes must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Addr returns the API listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
