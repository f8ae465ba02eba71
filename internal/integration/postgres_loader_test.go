//go:build integration

package integration_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/fishtank-etl/internal/adapter/postgres"
	"github.com/couchcryptid/fishtank-etl/internal/dataset"
	"github.com/couchcryptid/fishtank-etl/internal/dimension"
	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/couchcryptid/fishtank-etl/internal/observability"
	"github.com/couchcryptid/fishtank-etl/internal/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresStore(ctx context.Context, t *testing.T) *postgres.Store {
	t.Helper()
	store, err := postgres.NewStore(ctx, startPostgres(ctx, t), 8, discardLogger())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func newPostgresLoader(store *postgres.Store) *warehouse.Loader {
	metrics := observability.NewMetricsForTesting()
	// No known-key cache, so every load queries the dimension tables.
	dims := dimension.NewManager(nil, discardLogger(), metrics)
	return warehouse.NewLoader(store, dims, discardLogger(), metrics)
}

func surveyBatch(t *testing.T) *domain.Batch {
	t.Helper()
	b := domain.NewBatch(
		domain.Column{Name: "latitude", Kind: domain.KindFloat},
		domain.Column{Name: "longitude", Kind: domain.KindFloat},
		domain.Column{Name: "temperature_c", Kind: domain.KindFloat},
		domain.Column{Name: "date", Kind: domain.KindTimestamp},
	)
	day := time.Date(2018, 3, 15, 0, 0, 0, 0, time.UTC)
	for i := range 10 {
		require.NoError(t, b.Append(40.0+float64(i), 179.5-float64(i)*0.2, 10.0+float64(i), day))
	}
	return b
}

var surveyOptions = warehouse.LoadOptions{
	Table:           dataset.SeaSurfaceTemperature.Table,
	Mode:            domain.WriteAppend,
	LatColumn:       "latitude",
	LonColumn:       "longitude",
	TimestampColumn: "date",
}

func TestPostgresLoader_FirstLoadAndRerun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := newPostgresStore(ctx, t)
	loader := newPostgresLoader(store)

	first, err := loader.Load(ctx, surveyBatch(t), surveyOptions)
	require.NoError(t, err)
	assert.Equal(t, int64(10), first.Facts)
	assert.Equal(t, 1, first.NewKeys[domain.DateTable])
	assert.Positive(t, first.NewKeys[domain.SpatialTable(domain.FinestResolution())])

	again, err := loader.Load(ctx, surveyBatch(t), surveyOptions)
	require.NoError(t, err)
	for table, n := range again.NewKeys {
		assert.Zero(t, n, table)
	}

	sess, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer sess.Release()
	audit := sess.(*postgres.Session)
	for _, d := range domain.Dimensions() {
		dups, err := audit.CountDuplicateKeys(ctx, d.Table, d.KeyColumn)
		require.NoError(t, err, d.Table)
		assert.Zero(t, dups, d.Table)

		orphans, err := audit.CountOrphans(ctx, surveyOptions.Table, d.KeyColumn, d.Table)
		require.NoError(t, err, d.Table)
		assert.Zero(t, orphans, d.Table)
	}
}

func TestPostgresLoader_ConcurrentWritersShareNewKeys(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := newPostgresStore(ctx, t)

	const writers = 4
	batches := make([]*domain.Batch, writers)
	for i := range batches {
		batches[i] = surveyBatch(t)
	}
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = newPostgresLoader(store).Load(ctx, batches[i], surveyOptions)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	sess, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer sess.Release()
	audit := sess.(*postgres.Session)
	for _, d := range domain.Dimensions() {
		dups, err := audit.CountDuplicateKeys(ctx, d.Table, d.KeyColumn)
		require.NoError(t, err, d.Table)
		assert.Zero(t, dups, d.Table)
	}
}

func TestPostgresSession_MissingRelation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := newPostgresStore(ctx, t)

	sess, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer sess.Release()

	_, err = sess.ExistingKeys(ctx, domain.DateTable, domain.DateKeyColumn, domain.NewKeySet(0))
	require.ErrorIs(t, err, domain.ErrRelationNotFound)
}

func TestPostgresLoader_ReplaceMode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	store := newPostgresStore(ctx, t)
	loader := newPostgresLoader(store)

	opts := surveyOptions
	opts.Table = dataset.TagDataTable
	opts.Mode = domain.WriteReplace
	for range 2 {
		res, err := loader.Load(ctx, surveyBatch(t), opts)
		require.NoError(t, err)
		assert.Equal(t, int64(10), res.Facts)
	}
}
