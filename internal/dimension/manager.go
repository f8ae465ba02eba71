package dimension

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/couchcryptid/fishtank-etl/internal/observability"
)

// Session is a scoped store handle that can both query and extend dimensions.
type Session interface {
	KeyQuerier
	RowAppender
}

// Dimension pairs a dimension schema with the function that expands new keys
// into full rows.
type Dimension struct {
	Schema      domain.DimensionSchema
	Materialize func(domain.KeySet) (domain.DimensionRows, error)
}

// Spatial is the dimension for one H3 resolution.
func Spatial(resolution int) Dimension {
	return Dimension{
		Schema: domain.SpatialSchema(resolution),
		Materialize: func(keys domain.KeySet) (domain.DimensionRows, error) {
			return domain.MaterializeSpatial(keys, resolution)
		},
	}
}

// SpatialAll returns one spatial dimension per maintained resolution.
func SpatialAll() []Dimension {
	out := make([]Dimension, 0, len(domain.Resolutions))
	for _, r := range domain.Resolutions {
		out = append(out, Spatial(r))
	}
	return out
}

// Dates is the calendar day dimension.
func Dates() Dimension {
	return Dimension{
		Schema: domain.DateSchema(),
		Materialize: func(keys domain.KeySet) (domain.DimensionRows, error) {
			return domain.MaterializeDates(keys), nil
		},
	}
}

// Manager runs resolve, materialize and append for every dimension a fact
// batch references. It keeps no state between calls other than the optional
// known-key cache.
type Manager struct {
	known   *KnownKeys
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewManager creates a Manager. known may be nil to always query the store.
func NewManager(known *KnownKeys, logger *slog.Logger, metrics *observability.Metrics) *Manager {
	return &Manager{known: known, logger: logger, metrics: metrics}
}

// Sync appends the keys of b missing from each dimension and returns the
// number of new keys per dimension table. The batch must already carry each
// dimension's key column.
func (m *Manager) Sync(ctx context.Context, s Session, b *domain.Batch, dims ...Dimension) (map[string]int, error) {
	added := make(map[string]int, len(dims))
	for _, d := range dims {
		n, err := m.sync(ctx, s, b, d)
		if err != nil {
			return added, err
		}
		added[d.Schema.Table] = n
	}
	return added, nil
}

func (m *Manager) sync(ctx context.Context, s Session, b *domain.Batch, d Dimension) (int, error) {
	table := d.Schema.Table
	candidates, err := domain.KeysOf(b, d.Schema.KeyColumn)
	if err != nil {
		return 0, fmt.Errorf("sync %s: %w", table, err)
	}

	fresh, err := NewResolver(d.Schema, m.known, m.logger, m.metrics).Resolve(ctx, s, candidates)
	if err != nil {
		return 0, err
	}

	rows, err := d.Materialize(fresh)
	if err != nil {
		return 0, fmt.Errorf("sync %s: %w", table, err)
	}
	if rows.Len() > 0 {
		if err := Append(ctx, s, rows); err != nil {
			return 0, err
		}
		m.metrics.DimensionNewKeys.WithLabelValues(table).Add(float64(rows.Len()))
	}
	m.known.Remember(table, fresh)

	m.logger.Debug("dimension synced", "table", table, "candidates", candidates.Len(), "new", rows.Len())
	return rows.Len(), nil
}
