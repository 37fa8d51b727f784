//go:build integration

package device

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nerrad567/readingd/internal/infrastructure/database"
	"github.com/nerrad567/readingd/migrations"
)

func TestPostgresRepositoryContract(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("readingd"),
		postgres.WithUsername("readingd"),
		postgres.WithPassword("readingd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := database.OpenPostgres(ctx, database.PostgresConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.Postgres()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	runRepositoryContract(t, NewSQLRepository(db.DB, db.Dialect()))
}
