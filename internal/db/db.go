// Package db opens the sqlite databases backing the sync journal.
package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openvdir/vdirsync/internal/utils"
)

const defaultPragmas = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
`

// InMemory is the path for a throwaway in-memory database.
const InMemory = ":memory:"

type options struct {
	pragmas         string
	maxOpenConns    int
	connMaxLifetime time.Duration
}

type Option func(*options)

// WithPragmas replaces the default connection pragmas.
func WithPragmas(pragmas string) Option {
	return func(o *options) { o.pragmas = pragmas }
}

// WithMaxOpenConns caps the connection pool. Journals use 1 to serialize
// writers.
func WithMaxOpenConns(n int) Option {
	return func(o *options) { o.maxOpenConns = n }
}

// WithConnMaxLifetime bounds how long a pooled connection is reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *options) { o.connMaxLifetime = d }
}

// Open connects to the sqlite database at path, creating parent directories
// and the file as needed.
func Open(path string, opts ...Option) (*sqlx.DB, error) {
	o := &options{pragmas: defaultPragmas}
	for _, opt := range opts {
		opt(o)
	}

	dsn := path
	if path != InMemory {
		if err := utils.EnsureParent(path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", path)
	}

	slog.Debug("db open", "driver", driverID, "path", path)
	conn, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if o.maxOpenConns > 0 {
		conn.SetMaxOpenConns(o.maxOpenConns)
	}
	if o.connMaxLifetime > 0 {
		conn.SetConnMaxLifetime(o.connMaxLifetime)
	}

	if _, err := conn.Exec(o.pragmas); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return conn, nil
}
