// Package backend opens the configured warehouse store.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/fishtank-etl/internal/adapter/duckdb"
	"github.com/couchcryptid/fishtank-etl/internal/adapter/postgres"
	"github.com/couchcryptid/fishtank-etl/internal/config"
	"github.com/couchcryptid/fishtank-etl/internal/warehouse"
)

// Store is a warehouse store with operational hooks.
type Store interface {
	warehouse.Store
	CheckReadiness(ctx context.Context) error
	Close()
}

// Open connects to the backend named by cfg.WarehouseBackend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.WarehouseBackend {
	case config.BackendPostgres:
		s, err := postgres.NewStore(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendDuckDB:
		s, err := duckdb.Open(cfg.DuckDBPath, logger)
		if err != nil {
			return nil, err
		}
		return duckStore{Store: s, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown warehouse backend %q", cfg.WarehouseBackend)
	}
}

type duckStore struct {
	*duckdb.Store
	logger *slog.Logger
}

func (d duckStore) Close() {
	if err := d.Store.Close(); err != nil {
		d.logger.Error("duckdb close error", "error", err)
	}
}
