package duckdb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/wkb"
)

// maxInList bounds the number of placeholders per existence query.
const maxInList = 1000

// Session wraps one reserved connection.
type Session struct {
	conn   *sql.Conn
	logger *slog.Logger
}

// Release returns the connection to the pool.
func (s *Session) Release() {
	if err := s.conn.Close(); err != nil {
		s.logger.Warn("release duckdb connection", "error", err)
	}
}

// ExistingKeys selects the persisted keys of table that are in candidates,
// in chunks of at most maxInList keys.
func (s *Session) ExistingKeys(ctx context.Context, table, column string, candidates domain.KeySet) (domain.KeySet, error) {
	keys := candidates.Sorted()
	out := domain.NewKeySet()
	for start := 0; start < len(keys); start += maxInList {
		chunk := keys[start:min(start+maxInList, len(keys))]
		if err := s.existingChunk(ctx, table, column, chunk, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Session) existingChunk(ctx context.Context, table, column string, chunk []int64, out domain.KeySet) error {
	args := make([]any, len(chunk))
	for i, k := range chunk {
		args[i] = k
	}
	query := fmt.Sprintf("SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s IN (%[3]s)",
		quote(column), quote(table), placeholders(len(chunk)))

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	defer rows.Close()
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return err
		}
		out.Add(k)
	}
	return translate(rows.Err())
}

// AppendRows creates the dimension table if needed and inserts rows,
// ignoring keys that already exist.
func (s *Session) AppendRows(ctx context.Context, rows domain.DimensionRows) error {
	schema := rows.Schema
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, createTableSQL(schema.Table, schema.Columns, schema.KeyColumn)); err != nil {
			return fmt.Errorf("create %s: %w", schema.Table, err)
		}
		names := columnNames(schema.Columns)
		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
			quote(schema.Table), strings.Join(names, ", "), placeholders(len(names)))
		return s.insertRows(ctx, tx, insert, schema.Columns, rows.Rows)
	})
}

// WriteFacts inserts the batch into table, creating it from the batch columns
// when missing. Replace mode drops the table first.
func (s *Session) WriteFacts(ctx context.Context, table string, b *domain.Batch, mode domain.WriteMode) (int64, error) {
	cols := b.Columns()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if mode == domain.WriteReplace {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(table)); err != nil {
				return fmt.Errorf("drop %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, createTableSQL(table, cols, "")); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
		names := columnNames(cols)
		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quote(table), strings.Join(names, ", "), placeholders(len(names)))
		return s.insertRows(ctx, tx, insert, cols, b.Rows())
	})
	if err != nil {
		return 0, err
	}
	return int64(b.Len()), nil
}

// CountOrphans counts fact rows whose key has no row in the dimension table.
func (s *Session) CountOrphans(ctx context.Context, factTable, keyColumn, dimTable string) (int64, error) {
	query := fmt.Sprintf(
		"SELECT count(*) FROM %[1]s f WHERE f.%[2]s IS NOT NULL AND NOT EXISTS (SELECT 1 FROM %[3]s d WHERE d.%[2]s = f.%[2]s)",
		quote(factTable), quote(keyColumn), quote(dimTable))
	var n int64
	if err := s.conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}

// CountDuplicateKeys counts keys that appear more than once in a dimension table.
func (s *Session) CountDuplicateKeys(ctx context.Context, dimTable, keyColumn string) (int64, error) {
	query := fmt.Sprintf(
		"SELECT count(*) FROM (SELECT %[1]s FROM %[2]s GROUP BY %[1]s HAVING count(*) > 1) dup",
		quote(keyColumn), quote(dimTable))
	var n int64
	if err := s.conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (s *Session) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (s *Session) insertRows(ctx context.Context, tx *sql.Tx, insert string, cols []domain.Column, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		args, err := encodeRow(cols, r)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return nil
}

// translate maps DuckDB catalog errors for missing tables onto
// domain.ErrRelationNotFound.
func translate(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "Catalog Error") && strings.Contains(msg, "does not exist") {
		return fmt.Errorf("%w: %s", domain.ErrRelationNotFound, msg)
	}
	return err
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func columnNames(cols []domain.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quote(c.Name)
	}
	return names
}

func columnType(k domain.ColumnKind) string {
	switch k {
	case domain.KindInt:
		return "BIGINT"
	case domain.KindFloat:
		return "DOUBLE"
	case domain.KindTimestamp:
		return "TIMESTAMPTZ"
	case domain.KindGeometry:
		return "BLOB"
	case domain.KindBool:
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

func createTableSQL(table string, cols []domain.Column, key string) string {
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		def := quote(c.Name) + " " + columnType(c.Kind)
		if c.Name == key {
			def += " PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(table), strings.Join(defs, ", "))
}

func encodeRow(cols []domain.Column, row []any) ([]any, error) {
	out := make([]any, len(row))
	for i, v := range row {
		if cols[i].Kind != domain.KindGeometry || v == nil {
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
