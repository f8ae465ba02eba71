// Package duckdb is the embedded DuckDB warehouse backend, used for local
// runs and tests. Geometries are stored as WKB blobs.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/fishtank-etl/internal/warehouse"
	_ "github.com/duckdb/duckdb-go/v2"
)

// Store is a DuckDB database opened through database/sql.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens the database at path. An empty path opens an in-memory database
// shared by every session of the returned Store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	logger.Info("opened duckdb", "path", displayPath(path))
	return &Store{db: db, logger: logger}, nil
}

// Acquire reserves a dedicated connection for one load.
func (s *Store) Acquire(ctx context.Context) (warehouse.Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire duckdb connection: %w", err)
	}
	return &Session{conn: conn, logger: s.logger}, nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func displayPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}
