// Package db opens the SQLite run-history database and applies its embedded
// migrations.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "modernc.org/sqlite"

	"github.com/heimdex/edl-indexer/internal/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// interruptedError is stored on runs that were running when the process
// stopped.
const interruptedError = "interrupted by restart"

type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New opens (creating if needed) the database at path, applies pending
// migrations and fails any run left running by a previous process.
func New(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// One connection keeps writers serialized; WAL lets readers in the
	// API proceed while a run is being recorded.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	ctx := context.Background()
	d := &DB{conn: conn, logger: logger}
	if err := d.init(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) init(ctx context.Context) error {
	if err := d.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := d.migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	n, err := d.failInterruptedRuns(ctx)
	if err != nil {
		d.logger.Warn("failed to close out interrupted runs", "error", err)
	} else if n > 0 {
		d.logger.Info("marked interrupted runs as failed", "count", n)
	}
	return nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Conn() *sql.DB {
	return d.conn
}

// migrate applies each embedded migration not yet recorded in _migrations,
// in file name order, each inside its own transaction.
func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			name TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}

	applied, err := d.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	slices.Sort(names)

	for _, file := range names {
		name := filepath.Base(file)
		if applied[name] {
			continue
		}
		body, err := migrationsFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := d.apply(ctx, name, string(body)); err != nil {
			return err
		}
		d.logger.Info("applied migration", "name", name)
	}
	return nil
}

func (d *DB) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT name FROM _migrations`)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (d *DB) apply(ctx context.Context, name, body string) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("execute %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO _migrations (name, applied_at) VALUES (?, ?)`,
		name, timestamp(time.Now())); err != nil {
		return fmt.Errorf("record %s: %w", name, err)
	}
	return tx.Commit()
}

// failInterruptedRuns closes out runs left running. Runs are never resumed.
func (d *DB) failInterruptedRuns(ctx context.Context) (int64, error) {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE runs SET status = 'failed', error = ?, updated_at = ? WHERE status = 'running'`,
		interruptedError, timestamp(time.Now()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// timestamp matches the fixed-width layout the run repository stores.
func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
