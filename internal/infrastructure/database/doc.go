// Package database provides SQL connectivity for readingd.
//
// Two engines are supported behind one wrapper:
//   - SQLite (default) via github.com/mattn/go-sqlite3, opened with WAL mode,
//     a busy timeout and a single connection
//   - PostgreSQL via github.com/lib/pq, with a configurable pool
//
// Both engines share the forward-only migration runner in migrations.go.
// Migration files are embedded by the top-level migrations package and passed
// in as an fs.FS, so nothing here depends on package-level state.
//
// Queries in the store packages are written with ? placeholders; Rebind
// converts them to $N form when the wrapper's Dialect is Postgres.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.SQLite()); err != nil {
//	    return err
//	}
package database
