package dimension

import (
	"context"
	"io"
	"log/slog"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
)

// fakeSession is an in-memory dimension store.
type fakeSession struct {
	tables   map[string]domain.KeySet
	queryErr error
	queries  []domain.KeySet
	appended []domain.DimensionRows
	extra    domain.KeySet // returned by every query regardless of candidates
}

func newFakeSession() *fakeSession {
	return &fakeSession{tables: make(map[string]domain.KeySet)}
}

func (f *fakeSession) ExistingKeys(_ context.Context, table, _ string, candidates domain.KeySet) (domain.KeySet, error) {
	f.queries = append(f.queries, candidates)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	persisted, ok := f.tables[table]
	if !ok {
		return nil, domain.ErrRelationNotFound
	}
	out := domain.NewKeySet()
	for k := range candidates {
		if persisted.Has(k) {
			out.Add(k)
		}
	}
	for k := range f.extra {
		out.Add(k)
	}
	return out, nil
}

func (f *fakeSession) AppendRows(_ context.Context, rows domain.DimensionRows) error {
	f.appended = append(f.appended, rows)
	t, ok := f.tables[rows.Schema.Table]
	if !ok {
		t = domain.NewKeySet()
		f.tables[rows.Schema.Table] = t
	}
	for k := range rows.Keys() {
		t.Add(k)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
