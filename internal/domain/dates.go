package domain

import (
	"fmt"
	"time"
)

// DateTable is the date dimension table and DateKeyColumn its key.
const (
	DateTable     = "dates"
	DateKeyColumn = "date_key"
)

const secondsPerDay = 86400

// DateKey truncates Unix seconds to 00:00:00 UTC of the same calendar day.
// Pre-1970 timestamps floor toward the earlier midnight.
func DateKey(ts int64) int64 {
	m := ts % secondsPerDay
	if m < 0 {
		m += secondsPerDay
	}
	return ts - m
}

// AnnotateDates adds a date_key column derived from the named timestamp
// column. Values may be time.Time or int64 Unix seconds.
func AnnotateDates(b *Batch, tsCol string) error {
	c, ok := b.ColumnIndex(tsCol)
	if !ok {
		return fmt.Errorf("%w: missing column %q", ErrInvalidTimestamp, tsCol)
	}
	keys := make([]any, b.Len())
	for i, row := range b.Rows() {
		ts, ok := unixSeconds(row[c])
		if !ok {
			return fmt.Errorf("%w: row %d column %q has %T", ErrInvalidTimestamp, i, tsCol, row[c])
		}
		keys[i] = DateKey(ts)
	}
	return b.SetColumn(Column{Name: DateKeyColumn, Kind: KindInt}, keys)
}

// DateSchema is the date dimension schema.
func DateSchema() DimensionSchema {
	return DimensionSchema{
		Table:     DateTable,
		KeyColumn: DateKeyColumn,
		Columns: []Column{
			{Name: DateKeyColumn, Kind: KindInt},
			{Name: "date", Kind: KindTimestamp},
			{Name: "year", Kind: KindInt},
			{Name: "month", Kind: KindInt},
			{Name: "day", Kind: KindInt},
		},
	}
}

// MaterializeDates expands new date keys into calendar rows.
func MaterializeDates(keys KeySet) DimensionRows {
	out := DimensionRows{Schema: DateSchema(), Rows: make([][]any, 0, keys.Len())}
	for _, k := range keys.Sorted() {
		d := time.Unix(k, 0).UTC()
		out.Rows = append(out.Rows, []any{k, d, int64(d.Year()), int64(d.Month()), int64(d.Day())})
	}
	return out
}

func unixSeconds(v any) (int64, bool) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return 0, false
		}
		return x.Unix(), true
	case int64:
		return x, true
	case int:
		return int64(x), true
	default:
		return 0, false
	}
}
