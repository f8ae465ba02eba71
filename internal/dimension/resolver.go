// Package dimension reconciles fact batches against the persisted dimension
// tables: it resolves which keys are new, materializes their rows and appends
// only that delta.
package dimension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/couchcryptid/fishtank-etl/internal/observability"
)

// KeyQuerier returns the persisted keys of a dimension table, restricted to
// the candidate set. It returns domain.ErrRelationNotFound when the table does
// not exist yet.
type KeyQuerier interface {
	ExistingKeys(ctx context.Context, table, column string, candidates domain.KeySet) (domain.KeySet, error)
}

// Resolver computes the subset of candidate keys absent from one dimension table.
type Resolver struct {
	schema  domain.DimensionSchema
	known   *KnownKeys
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewResolver creates a resolver for schema. known may be nil.
func NewResolver(schema domain.DimensionSchema, known *KnownKeys, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{schema: schema, known: known, logger: logger, metrics: metrics}
}

// Resolve returns candidates minus the keys already persisted. A missing
// table counts as zero persisted keys; any other query failure is returned.
func (r *Resolver) Resolve(ctx context.Context, q KeyQuerier, candidates domain.KeySet) (domain.KeySet, error) {
	if candidates.Len() == 0 {
		return domain.NewKeySet(), nil
	}
	table := r.schema.Table
	r.metrics.DimensionCandidates.WithLabelValues(table).Add(float64(candidates.Len()))

	unknown := r.known.Unknown(table, candidates)
	if r.known != nil {
		r.metrics.KnownKeyCache.WithLabelValues("hit").Add(float64(candidates.Len() - unknown.Len()))
		r.metrics.KnownKeyCache.WithLabelValues("miss").Add(float64(unknown.Len()))
	}
	if unknown.Len() == 0 {
		return domain.NewKeySet(), nil
	}

	existing, err := q.ExistingKeys(ctx, table, r.schema.KeyColumn, unknown)
	switch {
	case errors.Is(err, domain.ErrRelationNotFound):
		r.logger.Info("dimension table not found, treating as empty", "table", table)
		r.metrics.MissingRelations.WithLabelValues(table).Inc()
		existing = domain.NewKeySet()
	case err != nil:
		return nil, fmt.Errorf("resolve %s: %w", table, err)
	}

	r.known.Remember(table, existing)
	return unknown.Difference(existing), nil
}
