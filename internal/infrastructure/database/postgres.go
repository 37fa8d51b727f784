package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresConfig contains PostgreSQL connection options.
// These map to the postgres section of config.yaml.
type PostgresConfig struct {
	// DSN is a lib/pq connection string, URL or key=value form.
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres connects to PostgreSQL and verifies the connection.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("opening postgres: dsn is required")
	}

	sqlDB, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying postgres connection: %w", err)
	}

	return &DB{DB: sqlDB, dialect: DialectPostgres}, nil
}
