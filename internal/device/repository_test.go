package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/readingd/internal/infrastructure/database"
	"github.com/nerrad567/readingd/migrations"
)

// setupTestDB opens an in-memory SQLite database with the real schema.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.SQLite()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// repositories returns every Repository implementation that runs without
// external services.
func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	return map[string]Repository{
		"sqlite": NewSQLiteRepository(setupTestDB(t).DB),
		"memory": NewMemoryRepository(),
	}
}

func testDevice(id string) *Device {
	return &Device{
		ID:            id,
		Count:         17,
		LatestReading: &Reading{Timestamp: "2021-09-29T16:09:15+01:00", Count: 15},
		Readings: []Reading{
			{Timestamp: "2021-09-29T16:08:15+01:00", Count: 2},
			{Timestamp: "2021-09-29T16:09:15+01:00", Count: 15},
		},
	}
}

func TestRepositoryContract(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			runRepositoryContract(t, repo)
		})
	}
}

// runRepositoryContract exercises behaviour every Repository must share.
func runRepositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()
	const (
		idA = "36d5658a-6908-479e-887e-a949ec199272"
		idB = "36d5658a-6908-479e-887e-a949ec199273"
	)

	t.Run("missing device", func(t *testing.T) {
		if _, err := repo.GetByID(ctx, idA); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
		}
		devices, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if devices == nil || len(devices) != 0 {
			t.Errorf("List() = %v, want empty non-nil slice", devices)
		}
	})

	t.Run("save and get", func(t *testing.T) {
		if err := repo.Save(ctx, testDevice(idA)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, err := repo.GetByID(ctx, idA)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Count != 17 || len(got.Readings) != 2 {
			t.Errorf("GetByID() = %+v", got)
		}
		if got.LatestReading == nil || *got.LatestReading != (Reading{Timestamp: "2021-09-29T16:09:15+01:00", Count: 15}) {
			t.Errorf("LatestReading = %+v", got.LatestReading)
		}
		if got.Readings[0].Timestamp != "2021-09-29T16:08:15+01:00" {
			t.Errorf("readings reordered: %+v", got.Readings)
		}
	})

	t.Run("overwrite keeps list position", func(t *testing.T) {
		if err := repo.Save(ctx, &Device{ID: idB, Count: 1, Readings: []Reading{{Timestamp: "t", Count: 1}}}); err != nil {
			t.Fatalf("Save(B) error = %v", err)
		}

		updated := testDevice(idA)
		updated.Count = 40
		if err := repo.Save(ctx, updated); err != nil {
			t.Fatalf("Save(A) error = %v", err)
		}

		devices, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(devices) != 2 || devices[0].ID != idA || devices[1].ID != idB {
			t.Fatalf("List() order = %+v", devices)
		}
		if devices[0].Count != 40 {
			t.Errorf("A count = %d, want 40", devices[0].Count)
		}
		if devices[1].LatestReading != nil {
			t.Errorf("B latest = %+v, want nil", devices[1].LatestReading)
		}
	})

	t.Run("verbatim timestamps", func(t *testing.T) {
		d := &Device{ID: idB, Count: 5, Readings: []Reading{{Timestamp: "2021-02-29T16:08:15+01:00", Count: 5}}}
		if err := repo.Save(ctx, d); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, err := repo.GetByID(ctx, idB)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Readings[0].Timestamp != "2021-02-29T16:08:15+01:00" {
			t.Errorf("timestamp = %q", got.Readings[0].Timestamp)
		}
	})

	t.Run("invalid device", func(t *testing.T) {
		if err := repo.Save(ctx, &Device{}); !errors.Is(err, ErrInvalidDevice) {
			t.Errorf("Save(empty) error = %v, want ErrInvalidDevice", err)
		}
	})

	t.Run("clear", func(t *testing.T) {
		if err := repo.Clear(ctx); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		devices, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(devices) != 0 {
			t.Errorf("List() after Clear = %d devices", len(devices))
		}
	})
}

func TestMemoryRepositoryIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	d := testDevice("a")
	if err := repo.Save(ctx, d); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	d.Readings[0].Count = 1000

	got, err := repo.GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Readings[0].Count != 2 {
		t.Error("stored device mutated through caller's pointer")
	}

	got.Count = 0
	again, _ := repo.GetByID(ctx, "a") //nolint:errcheck // checked above
	if again.Count != 17 {
		t.Error("stored device mutated through returned pointer")
	}
}

func TestSQLiteRepositorySurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "readingd.db")
	cfg := database.Config{Path: path, WALMode: true, BusyTimeout: 5}

	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.Migrate(ctx, migrations.SQLite()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := NewSQLiteRepository(db.DB).Save(ctx, testDevice("a")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	db.Close() //nolint:errcheck // reopened below

	db, err = database.Open(cfg)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	got, err := NewSQLiteRepository(db.DB).GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID() after reopen error = %v", err)
	}
	if got.Count != 17 {
		t.Errorf("Count = %d, want 17", got.Count)
	}
}
