package database

import (
	"strconv"
	"strings"
)

// Dialect identifies the SQL engine behind a DB.
type Dialect int

const (
	// DialectSQLite uses ? placeholders.
	DialectSQLite Dialect = iota

	// DialectPostgres uses $1, $2, ... placeholders.
	DialectPostgres
)

// String returns the dialect's config name.
func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	default:
		return "sqlite"
	}
}

// Rebind rewrites ? placeholders for the dialect.
// Queries must not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
