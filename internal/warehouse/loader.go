// Package warehouse loads fact batches: it keys them, grows the dimension
// tables with any new keys and then writes the facts, all within one store
// session.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/fishtank-etl/internal/dimension"
	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/couchcryptid/fishtank-etl/internal/observability"
)

// Session is a store connection scoped to one load. Release must be called
// exactly once.
type Session interface {
	dimension.Session
	WriteFacts(ctx context.Context, table string, b *domain.Batch, mode domain.WriteMode) (int64, error)
	Release()
}

// Store hands out sessions.
type Store interface {
	Acquire(ctx context.Context) (Session, error)
}

// LoadOptions describes how a fact batch is keyed and written.
type LoadOptions struct {
	Table string
	Mode  domain.WriteMode

	// LatColumn and LonColumn enable spatial keys when both are set.
	LatColumn string
	LonColumn string

	// TimestampColumn enables the date key when set.
	TimestampColumn string

	// DropColumns are removed after keying, before the facts are written.
	DropColumns []string
}

func (o LoadOptions) spatial() bool { return o.LatColumn != "" && o.LonColumn != "" }

// LoadResult summarizes a completed load.
type LoadResult struct {
	Table    string
	Facts    int64
	NewKeys  map[string]int
	Duration time.Duration
}

// Loader runs the per-batch load sequence against a Store.
type Loader struct {
	store   Store
	dims    *dimension.Manager
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewLoader creates a Loader.
func NewLoader(store Store, dims *dimension.Manager, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{store: store, dims: dims, logger: logger, metrics: metrics}
}

// Load annotates b with the requested keys, appends new dimension rows and
// writes the facts. The batch is modified in place.
func (l *Loader) Load(ctx context.Context, b *domain.Batch, opts LoadOptions) (res LoadResult, err error) {
	start := time.Now()
	res = LoadResult{Table: opts.Table}
	if opts.Table == "" {
		return res, errors.New("load: table name is required")
	}

	var dims []dimension.Dimension
	if opts.spatial() {
		if err := domain.AnnotateSpatial(b, opts.LatColumn, opts.LonColumn); err != nil {
			return res, fmt.Errorf("load %s: %w", opts.Table, err)
		}
		dims = append(dims, dimension.SpatialAll()...)
	}
	if opts.TimestampColumn != "" {
		if err := domain.AnnotateDates(b, opts.TimestampColumn); err != nil {
			return res, fmt.Errorf("load %s: %w", opts.Table, err)
		}
		dims = append(dims, dimension.Dates())
	}
	for _, c := range opts.DropColumns {
		b.Drop(c)
	}

	s, err := l.store.Acquire(ctx)
	if err != nil {
		return res, fmt.Errorf("load %s: acquire session: %w", opts.Table, err)
	}
	defer s.Release()

	if len(dims) > 0 && b.Len() > 0 {
		res.NewKeys, err = l.dims.Sync(ctx, s, b, dims...)
		if err != nil {
			return res, fmt.Errorf("load %s: %w", opts.Table, err)
		}
	}

	res.Facts, err = s.WriteFacts(ctx, opts.Table, b, opts.Mode)
	if err != nil {
		return res, fmt.Errorf("load %s: write facts: %w", opts.Table, err)
	}
	l.metrics.FactsLoaded.WithLabelValues(opts.Table).Add(float64(res.Facts))
	res.Duration = time.Since(start)

	l.logger.Info("facts loaded",
		"table", opts.Table,
		"mode", opts.Mode.String(),
		"rows", res.Facts,
		"new_keys", res.NewKeys,
		"duration", res.Duration,
	)
	return res, nil
}
