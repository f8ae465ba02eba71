package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/couchcryptid/fishtank-etl/internal/warehouse"
)

// WarehouseLoader implements BatchLoader by appending positions to a fact
// table keyed on position and observation date.
type WarehouseLoader struct {
	loader *warehouse.Loader
	table  string
}

// NewWarehouseLoader creates a WarehouseLoader writing to table.
func NewWarehouseLoader(loader *warehouse.Loader, table string) *WarehouseLoader {
	return &WarehouseLoader{loader: loader, table: table}
}

func (w *WarehouseLoader) LoadBatch(ctx context.Context, positions []domain.TagPosition) error {
	b, err := domain.TagPositionBatch(positions)
	if err != nil {
		return err
	}
	_, err = w.loader.Load(ctx, b, warehouse.LoadOptions{
		Table:           w.table,
		Mode:            domain.WriteAppend,
		LatColumn:       "latitude",
		LonColumn:       "longitude",
		TimestampColumn: "datetime",
	})
	if err != nil {
		return fmt.Errorf("load %d positions: %w", len(positions), err)
	}
	return nil
}
