// Package migrations embeds the SQL schema files into the binary so
// readingd can migrate without the files present on disk.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// SQLite returns the SQLite migrations rooted at the directory itself.
func SQLite() fs.FS {
	return sub("sqlite")
}

// Postgres returns the PostgreSQL migrations.
func Postgres() fs.FS {
	return sub("postgres")
}

func sub(dir string) fs.FS {
	fsys, err := fs.Sub(files, dir)
	if err != nil {
		// Only reachable if the embed directive and dir disagree.
		panic(err)
	}
	return fsys
}
