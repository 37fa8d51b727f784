package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

// upSuffix marks a forward migration file.
// Format: YYYYMMDD_HHMMSS_description.up.sql
const upSuffix = ".up.sql"

// versionLen is len("YYYYMMDD_HHMMSS").
const versionLen = 15

// ErrBadMigrationName is returned for an .up.sql file that doesn't follow
// the YYYYMMDD_HHMMSS_description.up.sql convention.
var ErrBadMigrationName = errors.New("database: bad migration filename")

// Migration is a single forward migration.
type Migration struct {
	// Version is the YYYYMMDD_HHMMSS prefix of the filename.
	Version string

	// Name is the description part of the filename.
	Name string

	SQL string
}

// Migrate applies every migration in fsys that hasn't been recorded in
// schema_migrations, oldest first. Each migration runs in its own
// transaction, so a failure leaves earlier migrations committed and the
// next call resumes from the failed one.
//
// Files that don't end in .up.sql are ignored.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) error {
	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}

	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// AppliedVersions returns recorded migration versions in ascending order.
func (db *DB) AppliedVersions(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (db *DB) createMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`)
	return err
}

func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}

	record := db.dialect.Rebind("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)")
	if _, err := tx.ExecContext(ctx, record, m.Version, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	return tx.Commit()
}

// LoadMigrations reads the .up.sql files at the root of fsys, sorted by version.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), upSuffix) {
			continue
		}

		version, name, err := ParseMigrationFilename(entry.Name())
		if err != nil {
			return nil, err
		}

		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// ParseMigrationFilename splits "20260301_090000_create_devices.up.sql" into
// version "20260301_090000" and name "create_devices".
func ParseMigrationFilename(filename string) (version, name string, err error) {
	base := strings.TrimSuffix(filename, upSuffix)
	if base == filename || len(base) < versionLen+2 || base[8] != '_' || base[versionLen] != '_' {
		return "", "", fmt.Errorf("%w: %s", ErrBadMigrationName, filename)
	}
	for i, c := range base[:versionLen] {
		if i == 8 {
			continue
		}
		if c < '0' || c > '9' {
			return "", "", fmt.Errorf("%w: %s", ErrBadMigrationName, filename)
		}
	}
	return base[:versionLen], base[versionLen+1:], nil
}
