package fingerprint

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/readingd/internal/infrastructure/database"
)

// SQLStore keeps fingerprints in the fingerprints table on SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLStore creates a store speaking the given dialect.
func NewSQLStore(db *sql.DB, dialect database.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Record(ctx context.Context, fp string) (bool, error) {
	if fp == "" {
		return false, ErrEmptyFingerprint
	}

	query := s.dialect.Rebind(`
		INSERT INTO fingerprints (fingerprint, created_at) VALUES (?, ?)
		ON CONFLICT (fingerprint) DO NOTHING`)

	res, err := s.db.ExecContext(ctx, query, fp, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("recording fingerprint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("recording fingerprint: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStore) Forget(ctx context.Context, fp string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM fingerprints WHERE fingerprint = ?`), fp); err != nil {
		return fmt.Errorf("forgetting fingerprint: %w", err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fingerprints`); err != nil {
		return fmt.Errorf("clearing fingerprints: %w", err)
	}
	return nil
}
