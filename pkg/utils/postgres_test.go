package utils_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"lead-response/internal/testdb"
	"lead-response/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM tx_probe`).Scan(&n))
	return n
}

func TestWithTx_CommitAndRollback(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE tx_probe (n INTEGER)`)
	require.NoError(t, err)

	err = utils.WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO tx_probe (n) VALUES (1)`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, db))

	boom := errors.New("boom")
	err = utils.WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tx_probe (n) VALUES (2)`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, countRows(t, db))
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE tx_probe (n INTEGER)`)
	require.NoError(t, err)

	assert.Panics(t, func() {
		_ = utils.WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
			_, _ = tx.ExecContext(ctx, `INSERT INTO tx_probe (n) VALUES (1)`)
			panic("boom")
		})
	})
	assert.Equal(t, 0, countRows(t, db))
}

func TestHealthCheck(t *testing.T) {
	db := testdb.Open(t)
	require.NoError(t, utils.HealthCheck(context.Background(), db, time.Second))

	closed := testdb.Open(t)
	require.NoError(t, closed.Close())
	assert.Error(t, utils.HealthCheck(context.Background(), closed, time.Second))
}

func TestExecScripts_AllOrNothing(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()

	err := utils.ExecScripts(ctx, db, []string{
		`CREATE TABLE script_probe (id TEXT PRIMARY KEY)`,
		`CREATE TABLE broken (`,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script 2")

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'script_probe'`).Scan(&n))
	assert.Zero(t, n, "first script rolled back")

	require.NoError(t, utils.ExecScripts(ctx, db, []string{`CREATE TABLE script_probe (id TEXT PRIMARY KEY)`}))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'script_probe'`).Scan(&n))
	assert.Equal(t, 1, n)
}
