package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/fishtank-etl/internal/adapter/duckdb"
	"github.com/couchcryptid/fishtank-etl/internal/dimension"
	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/couchcryptid/fishtank-etl/internal/observability"
	"github.com/couchcryptid/fishtank-etl/internal/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAuditor(t *testing.T) (*duckdb.Store, auditor) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := duckdb.Open("", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := observability.NewMetricsForTesting()
	loader := warehouse.NewLoader(store, dimension.NewManager(nil, logger, m), logger, m)
	b := domain.NewBatch(
		domain.Column{Name: "lat", Kind: domain.KindFloat},
		domain.Column{Name: "lon", Kind: domain.KindFloat},
		domain.Column{Name: "elevation", Kind: domain.KindFloat},
	)
	require.NoError(t, b.Append(45.0, -150.0, -4000.0))
	_, err = loader.Load(context.Background(), b, warehouse.LoadOptions{
		Table: "bathymetry", LatColumn: "lat", LonColumn: "lon",
	})
	require.NoError(t, err)

	s, err := store.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(s.Release)
	return store, s.(auditor)
}

func TestValidate_CleanWarehousePasses(t *testing.T) {
	_, a := openAuditor(t)

	phases := validate(context.Background(), a, []factKeys{{table: "bathymetry", spatial: true}})

	var out bytes.Buffer
	assert.Equal(t, 0, report(&out, "duckdb", phases), out.String())
	assert.Contains(t, out.String(), "dates does not exist")
}

func TestValidate_OrphanedKeyFails(t *testing.T) {
	store, a := openAuditor(t)
	ctx := context.Background()

	s, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer s.Release()
	orphan := domain.NewBatch(
		domain.Column{Name: "ptt", Kind: domain.KindText},
		domain.Column{Name: domain.DateKeyColumn, Kind: domain.KindInt},
	)
	require.NoError(t, orphan.Append("229014", time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC).Unix()))
	_, err = s.WriteFacts(ctx, "tag_data", orphan, domain.WriteReplace)
	require.NoError(t, err)
	require.NoError(t, s.AppendRows(ctx, domain.MaterializeDates(domain.NewKeySet(0))))

	phases := validate(ctx, a, []factKeys{{table: "tag_data", dates: true}})

	var out bytes.Buffer
	assert.Equal(t, 1, report(&out, "duckdb", phases))
	assert.Contains(t, out.String(), "tag_data.date_key: 1 rows reference keys missing from dates")
}

func TestSelectFacts(t *testing.T) {
	got := selectFacts(facts, []string{"bathymetry", " custom "})

	require.Len(t, got, 2)
	assert.Equal(t, factKeys{table: "bathymetry", spatial: true}, got[0])
	assert.Equal(t, factKeys{table: "custom", spatial: true, dates: true}, got[1])
}

func TestReport_TabulatesChecks(t *testing.T) {
	p := &phase{name: "Fact keys resolve to dimensions"}
	p.record("bathymetry", "h3_key_6", "h3_resolution_6", 0)

	var out bytes.Buffer
	require.Equal(t, 0, report(&out, "duckdb", []*phase{p}))
	assert.Contains(t, out.String(), "bathymetry")
	assert.Contains(t, out.String(), "VIOLATIONS")
	assert.Contains(t, out.String(), "h3_resolution_6")
}
