package domain

import "fmt"

// DimensionSchema describes a dimension table: its name, key column and the
// full column list in insert order. The key column is always first.
type DimensionSchema struct {
	Table     string
	KeyColumn string
	Columns   []Column
}

// DimensionRows is a materialized set of new dimension rows, ordered by key.
type DimensionRows struct {
	Schema DimensionSchema
	Rows   [][]any
}

// Len returns the number of rows.
func (d DimensionRows) Len() int { return len(d.Rows) }

// Keys returns the key of every row.
func (d DimensionRows) Keys() KeySet {
	s := make(KeySet, len(d.Rows))
	for _, r := range d.Rows {
		if k, ok := r[0].(int64); ok {
			s.Add(k)
		}
	}
	return s
}

// Dimensions lists every dimension table the loader maintains: one spatial
// table per resolution followed by the date table.
func Dimensions() []DimensionSchema {
	out := make([]DimensionSchema, 0, len(Resolutions)+1)
	for _, r := range Resolutions {
		out = append(out, SpatialSchema(r))
	}
	return append(out, DateSchema())
}

// SpatialKeyColumn is the fact and dimension column holding keys for a resolution.
func SpatialKeyColumn(resolution int) string {
	return fmt.Sprintf("h3_key_%d", resolution)
}

// SpatialTable is the dimension table for a resolution.
func SpatialTable(resolution int) string {
	return fmt.Sprintf("h3_resolution_%d", resolution)
}
