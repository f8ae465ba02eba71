package postgres

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/wkb"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// Session wraps one pooled connection.
type Session struct {
	conn   *pgxpool.Conn
	logger *slog.Logger
}

// Release returns the connection to the pool.
func (s *Session) Release() {
	s.conn.Release()
}

// ExistingKeys selects the persisted keys of table that are in candidates.
func (s *Session) ExistingKeys(ctx context.Context, table, column string, candidates domain.KeySet) (domain.KeySet, error) {
	query := fmt.Sprintf("SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s = ANY($1)", ident(column), ident(table))

	rows, err := s.conn.Query(ctx, query, candidates.Sorted())
	if err != nil {
		return nil, translate(err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, translate(err)
	}
	return domain.NewKeySet(keys...), nil
}

// AppendRows creates the dimension table if needed and inserts rows, skipping
// keys another writer already added. An advisory lock on the table name
// serializes concurrent creators.
func (s *Session) AppendRows(ctx context.Context, rows domain.DimensionRows) error {
	schema := rows.Schema
	return pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", schema.Table); err != nil {
			return fmt.Errorf("lock %s: %w", schema.Table, err)
		}
		if _, err := tx.Exec(ctx, createTableSQL(schema.Table, schema.Columns, schema.KeyColumn)); err != nil {
			return fmt.Errorf("create %s: %w", schema.Table, err)
		}

		insert := insertSQL(schema)
		batch := &pgx.Batch{}
		for _, r := range rows.Rows {
			args, err := encodeRow(schema.Columns, r)
			if err != nil {
				return err
			}
			batch.Queue(insert, args...)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// WriteFacts bulk-copies the batch into table, creating it from the batch
// columns when missing. Replace mode drops the table first. Writers to the
// same table are serialized by the same advisory lock AppendRows uses.
func (s *Session) WriteFacts(ctx context.Context, table string, b *domain.Batch, mode domain.WriteMode) (int64, error) {
	cols := b.Columns()
	for _, c := range cols {
		if c.Kind == domain.KindGeometry {
			return 0, fmt.Errorf("write %s: geometry fact column %q is not supported", table, c.Name)
		}
	}

	var n int64
	err := pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", table); err != nil {
			return fmt.Errorf("lock %s: %w", table, err)
		}
		if mode == domain.WriteReplace {
			if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident(table)); err != nil {
				return fmt.Errorf("drop %s: %w", table, err)
			}
		}
		if _, err := tx.Exec(ctx, createTableSQL(table, cols, "")); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
		if b.Len() == 0 {
			return nil
		}

		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.Name
		}
		var err error
		n, err = tx.CopyFrom(ctx, pgx.Identifier{table}, names, pgx.CopyFromRows(b.Rows()))
		if err != nil {
			return fmt.Errorf("copy into %s: %w", table, err)
		}
		return nil
	})
	return n, err
}

// CountOrphans counts fact rows whose key has no row in the dimension table.
func (s *Session) CountOrphans(ctx context.Context, factTable, keyColumn, dimTable string) (int64, error) {
	query := fmt.Sprintf(
		"SELECT count(*) FROM %[1]s f WHERE f.%[2]s IS NOT NULL AND NOT EXISTS (SELECT 1 FROM %[3]s d WHERE d.%[2]s = f.%[2]s)",
		ident(factTable), ident(keyColumn), ident(dimTable))
	var n int64
	if err := s.conn.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}

// CountDuplicateKeys counts keys that appear more than once in a dimension table.
func (s *Session) CountDuplicateKeys(ctx context.Context, dimTable, keyColumn string) (int64, error) {
	query := fmt.Sprintf(
		"SELECT count(*) FROM (SELECT %[1]s FROM %[2]s GROUP BY %[1]s HAVING count(*) > 1) dup",
		ident(keyColumn), ident(dimTable))
	var n int64
	if err := s.conn.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}

// translate maps driver errors onto domain sentinels.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%w: %s", domain.ErrRelationNotFound, pgErr.Message)
	}
	return err
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func columnType(k domain.ColumnKind) string {
	switch k {
	case domain.KindInt:
		return "BIGINT"
	case domain.KindFloat:
		return "DOUBLE PRECISION"
	case domain.KindTimestamp:
		return "TIMESTAMPTZ"
	case domain.KindGeometry:
		return "geometry(Polygon, 4326)"
	case domain.KindBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// createTableSQL renders CREATE TABLE IF NOT EXISTS. A non-empty key becomes
// the primary key.
func createTableSQL(table string, cols []domain.Column, key string) string {
	defs := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		defs = append(defs, ident(c.Name)+" "+columnType(c.Kind))
	}
	if key != "" {
		defs = append(defs, "PRIMARY KEY ("+ident(key)+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", ident(table), strings.Join(defs, ", "))
}

func insertSQL(schema domain.DimensionSchema) string {
	names := make([]string, len(schema.Columns))
	params := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		names[i] = ident(c.Name)
		params[i] = fmt.Sprintf("$%d", i+1)
		if c.Kind == domain.KindGeometry {
			params[i] = fmt.Sprintf("ST_GeomFromWKB($%d, 4326)", i+1)
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		ident(schema.Table), strings.Join(names, ", "), strings.Join(params, ", "), ident(schema.KeyColumn))
}

func encodeRow(cols []domain.Column, row []any) ([]any, error) {
	out := make([]any, len(row))
	for i, v := range row {
		if cols[i].Kind != domain.KindGeometry {
			out[i] = v
			continue
		}
		g, ok := v.(geom.Geom)
		if !ok {
			return nil, fmt.Errorf("column %q: expected geometry, got %T", cols[i].Name, v)
		}
		buf, err := wkb.Encode(g, binary.LittleEndian)
		if err != nil {
			return nil, fmt.Errorf("column %q: encode wkb: %w", cols[i].Name, err)
		}
		out[i] = buf
	}
	return out, nil
}
