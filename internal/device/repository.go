package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/readingd/internal/infrastructure/database"
)

// Repository defines device persistence operations.
type Repository interface {
	// GetByID retrieves a device by its identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices in the order their ids were first saved.
	List(ctx context.Context) ([]Device, error)

	// Save inserts or fully overwrites a device. An existing device keeps
	// its position in List order.
	Save(ctx context.Context, d *Device) error

	// Clear removes every device.
	Clear(ctx context.Context) error
}

// SQLRepository implements Repository on SQLite or PostgreSQL.
type SQLRepository struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLRepository creates a repository speaking the given dialect.
// The devices table must already exist (see the migrations package).
func NewSQLRepository(db *sql.DB, dialect database.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

// NewSQLiteRepository creates a SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLRepository {
	return NewSQLRepository(db, database.DialectSQLite)
}

const selectDevice = `SELECT id, count, latest_reading, readings FROM devices`

// GetByID retrieves a device by its identifier.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(selectDevice+` WHERE id = ?`), id)

	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all devices in first-saved order.
func (r *SQLRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDevice+` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Save upserts the device. The row's seq is assigned on first insert and
// left alone by the ON CONFLICT branch.
func (r *SQLRepository) Save(ctx context.Context, d *Device) error {
	if d == nil || d.ID == "" {
		return ErrInvalidDevice
	}

	readings := d.Readings
	if readings == nil {
		readings = []Reading{}
	}
	readingsJSON, err := json.Marshal(readings)
	if err != nil {
		return fmt.Errorf("marshalling readings: %w", err)
	}

	var latest sql.NullString
	if d.LatestReading != nil {
		b, err := json.Marshal(d.LatestReading)
		if err != nil {
			return fmt.Errorf("marshalling latest reading: %w", err)
		}
		latest = sql.NullString{String: string(b), Valid: true}
	}

	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO devices (id, count, latest_reading, readings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			count = excluded.count,
			latest_reading = excluded.latest_reading,
			readings = excluded.readings,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, r.dialect.Rebind(query),
		d.ID, d.Count, latest, string(readingsJSON), now, now)
	if err != nil {
		return fmt.Errorf("saving device: %w", err)
	}
	return nil
}

// Clear removes every device.
func (r *SQLRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM devices`); err != nil {
		return fmt.Errorf("clearing devices: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d            Device
		latest       sql.NullString
		readingsJSON string
	)

	if err := row.Scan(&d.ID, &d.Count, &latest, &readingsJSON); err != nil {
		return nil, err
	}

	if latest.Valid {
		var reading Reading
		if err := json.Unmarshal([]byte(latest.String), &reading); err != nil {
			return nil, fmt.Errorf("unmarshalling latest reading: %w", err)
		}
		d.LatestReading = &reading
	}

	if err := json.Unmarshal([]byte(readingsJSON), &d.Readings); err != nil {
		return nil, fmt.Errorf("unmarshalling readings: %w", err)
	}
	if d.Readings == nil {
		d.Readings = []Reading{}
	}

	return &d, nil
}
