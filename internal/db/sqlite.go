// Package db provides the SQLite-backed audit store.
package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/neboloop/browserd/internal/db/migrations"
)

// NewSQLite opens the database, runs migrations, and returns a Store.
func NewSQLite(path string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL mode with a single connection. SQLite does not handle concurrent
	// writers well; every access serializes through this one connection.
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=cache_size(1000000000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrations.Run(conn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("audit database initialized", "path", path)
	return newStore(conn, logger), nil
}
