// Package migrations embeds the Postgres schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"lead-response/pkg/utils"
)

//go:embed *.sql
var files embed.FS

// Scripts returns the migration files in apply order.
func Scripts() ([]string, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, n := range names {
		b, err := files.ReadFile(n)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", n, err)
		}
		out = append(out, string(b))
	}
	return out, nil
}

// Apply runs every script. Scripts are idempotent (IF NOT EXISTS), so reapplying is safe.
// rewrite, when set, adapts each script to another SQL dialect before it runs.
func Apply(ctx context.Context, db *sql.DB, rewrite func(string) string) error {
	scripts, err := Scripts()
	if err != nil {
		return err
	}
	if rewrite != nil {
		for i := range scripts {
			scripts[i] = rewrite(scripts[i])
		}
	}
	if err := utils.ExecScripts(ctx, db, scripts); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
