package duckdb

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/ctessum/geom/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSession(t *testing.T) *Session {
	t.Helper()
	store, err := Open("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s, err := store.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(s.Release)
	return s.(*Session)
}

func TestExistingKeys_MissingTable(t *testing.T) {
	s := openSession(t)

	_, err := s.ExistingKeys(context.Background(), "dates", "date_key", domain.NewKeySet(0))
	require.ErrorIs(t, err, domain.ErrRelationNotFound)
}

func TestAppendRows_ThenExistingKeys(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)

	require.NoError(t, s.AppendRows(ctx, domain.MaterializeDates(domain.NewKeySet(0, 86400))))

	got, err := s.ExistingKeys(ctx, "dates", "date_key", domain.NewKeySet(0, 86400, 172800))
	require.NoError(t, err)
	assert.Equal(t, domain.NewKeySet(0, 86400), got)
}

func TestAppendRows_IgnoresExistingKeys(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)

	require.NoError(t, s.AppendRows(ctx, domain.MaterializeDates(domain.NewKeySet(0))))
	require.NoError(t, s.AppendRows(ctx, domain.MaterializeDates(domain.NewKeySet(0, 86400))))

	dups, err := s.CountDuplicateKeys(ctx, "dates", "date_key")
	require.NoError(t, err)
	assert.Zero(t, dups)

	var n int
	require.NoError(t, s.conn.QueryRowContext(ctx, `SELECT count(*) FROM dates`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestAppendRows_StoresCalendarFields(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)
	key := time.Date(2018, 3, 15, 0, 0, 0, 0, time.UTC).Unix()

	require.NoError(t, s.AppendRows(ctx, domain.MaterializeDates(domain.NewKeySet(key))))

	var year, month, day int
	require.NoError(t, s.conn.QueryRowContext(ctx, `SELECT year, month, day FROM dates WHERE date_key = ?`, key).Scan(&year, &month, &day))
	assert.Equal(t, []int{2018, 3, 15}, []int{year, month, day})
}

func TestAppendRows_SpatialGeometryBlob(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)

	k, err := domain.CellKey(44.6, -124.1, 6)
	require.NoError(t, err)
	rows, err := domain.MaterializeSpatial(domain.NewKeySet(k), 6)
	require.NoError(t, err)
	require.NoError(t, s.AppendRows(ctx, rows))

	var blob []byte
	require.NoError(t, s.conn.QueryRowContext(ctx, `SELECT geometry FROM h3_resolution_6 WHERE h3_key_6 = ?`, k).Scan(&blob))
	require.NotEmpty(t, blob)

	stored, err := wkb.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, rows.Rows[0][1], stored)
}

func TestExistingKeys_Chunked(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)

	all := domain.NewKeySet()
	for i := range int64(2500) {
		all.Add(i * 86400)
	}
	require.NoError(t, s.AppendRows(ctx, domain.MaterializeDates(all)))

	candidates := all.Difference(domain.NewKeySet())
	candidates.Add(-86400)
	got, err := s.ExistingKeys(ctx, "dates", "date_key", candidates)
	require.NoError(t, err)
	assert.Equal(t, all, got)
}

func TestWriteFacts_AppendAndReplace(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)

	batch := func(values ...float64) *domain.Batch {
		b := domain.NewBatch(
			domain.Column{Name: "ptt", Kind: domain.KindText},
			domain.Column{Name: "depth_m", Kind: domain.KindFloat},
			domain.Column{Name: "datetime", Kind: domain.KindTimestamp},
		)
		for _, v := range values {
			require.NoError(t, b.Append("229014", v, time.Unix(0, 0).UTC()))
		}
		return b
	}
	count := func() int {
		var n int
		require.NoError(t, s.conn.QueryRowContext(ctx, `SELECT count(*) FROM tag_data`).Scan(&n))
		return n
	}

	n, err := s.WriteFacts(ctx, "tag_data", batch(1, 2), domain.WriteAppend)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = s.WriteFacts(ctx, "tag_data", batch(3), domain.WriteAppend)
	require.NoError(t, err)
	assert.Equal(t, 3, count())

	_, err = s.WriteFacts(ctx, "tag_data", batch(4), domain.WriteReplace)
	require.NoError(t, err)
	assert.Equal(t, 1, count())
}

func TestWriteFacts_NullValues(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)

	b := domain.NewBatch(domain.Column{Name: "temperature_c", Kind: domain.KindFloat})
	require.NoError(t, b.Append(nil))
	_, err := s.WriteFacts(ctx, "tag_stream", b, domain.WriteAppend)
	require.NoError(t, err)

	var nulls int
	require.NoError(t, s.conn.QueryRowContext(ctx, `SELECT count(*) FROM tag_stream WHERE temperature_c IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)
}

func TestCountOrphans(t *testing.T) {
	ctx := context.Background()
	s := openSession(t)

	require.NoError(t, s.AppendRows(ctx, domain.MaterializeDates(domain.NewKeySet(0))))
	b := domain.NewBatch(domain.Column{Name: "date_key", Kind: domain.KindInt})
	require.NoError(t, b.Append(int64(0)))
	require.NoError(t, b.Append(int64(86400)))
	_, err := s.WriteFacts(ctx, "facts", b, domain.WriteAppend)
	require.NoError(t, err)

	n, err := s.CountOrphans(ctx, "facts", "date_key", "dates")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.CountOrphans(ctx, "missing", "date_key", "dates")
	require.ErrorIs(t, err, domain.ErrRelationNotFound)
}

func TestCreateTableSQL(t *testing.T) {
	s := domain.DateSchema()
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "dates" ("date_key" BIGINT PRIMARY KEY, "date" TIMESTAMPTZ, "year" BIGINT, "month" BIGINT, "day" BIGINT)`,
		createTableSQL(s.Table, s.Columns, s.KeyColumn))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
