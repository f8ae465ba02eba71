package domain

import (
	"fmt"
	"slices"
)

// ColumnKind is the storage type of a batch column. Store adapters map each
// kind to a native column type.
type ColumnKind int

const (
	KindInt ColumnKind = iota
	KindFloat
	KindText
	KindTimestamp
	KindGeometry
	KindBool
)

func (k ColumnKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindTimestamp:
		return "timestamp"
	case KindGeometry:
		return "geometry"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column names and types one field of a Batch.
type Column struct {
	Name string
	Kind ColumnKind
}

// Batch is an in-memory table of fact rows. Values are stored row-major and
// must be one of int64, float64, string, bool, time.Time, geom.Polygon or nil.
type Batch struct {
	columns []Column
	index   map[string]int
	rows    [][]any
}

// NewBatch creates an empty batch with the given columns.
func NewBatch(columns ...Column) *Batch {
	b := &Batch{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		b.index[c.Name] = len(b.columns)
		b.columns = append(b.columns, c)
	}
	return b
}

// Columns returns the batch columns in order.
func (b *Batch) Columns() []Column { return slices.Clone(b.columns) }

// Len returns the number of rows.
func (b *Batch) Len() int { return len(b.rows) }

// Rows exposes the underlying row storage. Callers must not change row lengths.
func (b *Batch) Rows() [][]any { return b.rows }

// Append adds one row. The number of values must match the column count.
func (b *Batch) Append(values ...any) error {
	if len(values) != len(b.columns) {
		return fmt.Errorf("append row: got %d values for %d columns", len(values), len(b.columns))
	}
	b.rows = append(b.rows, slices.Clone(values))
	return nil
}

// ColumnIndex returns the position of the named column.
func (b *Batch) ColumnIndex(name string) (int, bool) {
	i, ok := b.index[name]
	return i, ok
}

// Has reports whether the batch has the named column.
func (b *Batch) Has(name string) bool {
	_, ok := b.index[name]
	return ok
}

// Value returns the value stored at row i in the named column.
func (b *Batch) Value(i int, name string) (any, bool) {
	c, ok := b.index[name]
	if !ok || i < 0 || i >= len(b.rows) {
		return nil, false
	}
	return b.rows[i][c], true
}

// Set overwrites a single cell.
func (b *Batch) Set(i int, name string, v any) error {
	c, ok := b.index[name]
	if !ok {
		return fmt.Errorf("set %q: no such column", name)
	}
	if i < 0 || i >= len(b.rows) {
		return fmt.Errorf("set %q: row %d out of range", name, i)
	}
	b.rows[i][c] = v
	return nil
}

// SetColumn replaces the named column's values, adding the column at the end
// when it does not exist yet. len(values) must equal Len.
func (b *Batch) SetColumn(col Column, values []any) error {
	if len(values) != len(b.rows) {
		return fmt.Errorf("set column %q: got %d values for %d rows", col.Name, len(values), len(b.rows))
	}
	c, ok := b.index[col.Name]
	if !ok {
		c = len(b.columns)
		b.index[col.Name] = c
		b.columns = append(b.columns, col)
		for i := range b.rows {
			b.rows[i] = append(b.rows[i], values[i])
		}
		return nil
	}
	b.columns[c] = col
	for i := range b.rows {
		b.rows[i][c] = values[i]
	}
	return nil
}

// Drop removes the named column. Dropping an unknown column is a no-op.
func (b *Batch) Drop(name string) {
	c, ok := b.index[name]
	if !ok {
		return
	}
	b.columns = slices.Delete(b.columns, c, c+1)
	for i := range b.rows {
		b.rows[i] = slices.Delete(b.rows[i], c, c+1)
	}
	b.reindex()
}

// Rename changes a column name. Unknown columns are ignored; renaming onto an
// existing column is an error.
func (b *Batch) Rename(from, to string) error {
	c, ok := b.index[from]
	if !ok || from == to {
		return nil
	}
	if _, exists := b.index[to]; exists {
		return fmt.Errorf("rename %q to %q: column already exists", from, to)
	}
	b.columns[c].Name = to
	b.reindex()
	return nil
}

// Retype changes the declared kind of a column without touching its values.
func (b *Batch) Retype(name string, kind ColumnKind) {
	if c, ok := b.index[name]; ok {
		b.columns[c].Kind = kind
	}
}

func (b *Batch) reindex() {
	clear(b.index)
	for i, c := range b.columns {
		b.index[c.Name] = i
	}
}
