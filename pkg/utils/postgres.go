package utils

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresPoolConfig sizes the database/sql pool. Zero fields take the defaults below, which
// favour many short transactions from webhook bursts.
type PostgresPoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

const (
	defaultPGMaxOpen     = 25
	defaultPGLifetime    = 30 * time.Minute
	defaultPGIdleTime    = 5 * time.Minute
	defaultPGPingTimeout = 5 * time.Second
)

// OpenPostgres opens the call-log database and pings it.
// driverName is "pgx" (pgx stdlib) in the service and "sqlite3" in tests.
// dsn carries credentials and must not be logged.
func OpenPostgres(ctx context.Context, driverName, dsn string, pool PostgresPoolConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}

	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultPGMaxOpen
	}
	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(orDuration(pool.ConnMaxLifetime, defaultPGLifetime))
	db.SetConnMaxIdleTime(orDuration(pool.ConnMaxIdleTime, defaultPGIdleTime))

	if err := HealthCheck(ctx, db, orDuration(pool.PingTimeout, defaultPGPingTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// HealthCheck pings db, giving up after timeout.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping failed: %w", err)
	}
	return nil
}

// TxFunc is the unit of work executed inside a transaction.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// WithTx commits when fn returns nil and rolls back otherwise. A panic in fn rolls back and
// is re-raised. Used by usage reconciliation to swap a day's rows and by schema setup.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// ExecScripts runs schema scripts in order inside one transaction, so a failing script leaves
// no partial schema behind.
func ExecScripts(ctx context.Context, db *sql.DB, scripts []string) error {
	return WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for i, s := range scripts {
			if _, err := tx.ExecContext(ctx, s); err != nil {
				return fmt.Errorf("script %d: %w", i+1, err)
			}
		}
		return nil
	})
}
