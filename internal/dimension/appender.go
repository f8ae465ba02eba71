package dimension

import (
	"context"
	"fmt"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
)

// RowAppender persists dimension rows into rows.Schema.Table, creating the
// table on first use. Writes must ignore keys that already exist.
type RowAppender interface {
	AppendRows(ctx context.Context, rows domain.DimensionRows) error
}

// Append writes a non-empty batch of materialized dimension rows. An empty
// batch is a caller error and fails with domain.ErrEmptyAppendBatch before
// touching the store.
func Append(ctx context.Context, w RowAppender, rows domain.DimensionRows) error {
	if rows.Len() == 0 {
		return fmt.Errorf("append %s: %w", rows.Schema.Table, domain.ErrEmptyAppendBatch)
	}
	if err := w.AppendRows(ctx, rows); err != nil {
		return fmt.Errorf("append %s: %w", rows.Schema.Table, err)
	}
	return nil
}
