// Package testdb opens an in-memory SQLite database carrying the service schema.
// Only tests import it.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"lead-response/migrations"

	_ "github.com/mattn/go-sqlite3"
)

var seq atomic.Int64

// sqlite only materializes time.Time for the exact decltypes date/datetime/timestamp.
var dialect = strings.NewReplacer(
	"TIMESTAMPTZ", "TIMESTAMP",
	"JSONB", "TEXT",
)

// SQLite rewrites a Postgres schema script into the subset sqlite accepts.
func SQLite(script string) string { return dialect.Replace(script) }

// Open returns a fresh database; it is closed when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	// Named shared-cache DSN so every pooled connection sees the same memory database.
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared&_loc=UTC", seq.Add(1))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if err := migrations.Apply(context.Background(), db, SQLite); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}
