// Package dataset turns the raw exports behind each fact table into batches
// and load options for warehouse.Loader.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/couchcryptid/fishtank-etl/internal/warehouse"
)

// Job is a keyed-load request: the batch and how to load it.
type Job struct {
	Batch   *domain.Batch
	Options warehouse.LoadOptions
}

// CSVSchema controls how ReadCSV types and names columns. Column names refer
// to the CSV header, before renaming.
type CSVSchema struct {
	// Text columns are never inferred as numbers.
	Text []string
	// Timestamps are parsed with domain.ParseTimestamp.
	Timestamps []string
	// Renames maps header names to warehouse column names.
	Renames map[string]string
}

// ReadCSV reads a headed CSV into a batch. Columns not listed in the schema
// are inferred: bool when every value is a boolean literal, int when every
// value is an integer and none is missing, float when every value parses as a
// number, otherwise text. Empty, NA and NaN cells are stored as nil.
func ReadCSV(r io.Reader, schema CSVSchema) (*domain.Batch, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("read csv: missing header")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	header[0] = trimBOM(header[0])

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	cols := make([]domain.Column, len(header))
	for c, name := range header {
		cols[c] = domain.Column{Name: name, Kind: inferKind(name, c, records, schema)}
	}

	b := domain.NewBatch(cols...)
	for i, rec := range records {
		row := make([]any, len(cols))
		for c, col := range cols {
			v, err := parseCell(rec[c], col.Kind)
			if err != nil {
				return nil, fmt.Errorf("read csv: line %d column %q: %w", i+2, col.Name, err)
			}
			row[c] = v
		}
		if err := b.Append(row...); err != nil {
			return nil, fmt.Errorf("read csv: line %d: %w", i+2, err)
		}
	}

	for from, to := range schema.Renames {
		if err := b.Rename(from, to); err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
	}
	return b, nil
}

func inferKind(name string, c int, records [][]string, schema CSVSchema) domain.ColumnKind {
	switch {
	case slices.Contains(schema.Timestamps, name):
		return domain.KindTimestamp
	case slices.Contains(schema.Text, name):
		return domain.KindText
	}

	isBool, isInt, isFloat := true, true, true
	seen := false
	for _, rec := range records {
		s := strings.TrimSpace(rec[c])
		if missing(s) {
			isInt = false
			continue
		}
		seen = true
		if _, err := strconv.ParseBool(s); err != nil {
			isBool = false
		}
		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			isFloat = false
		}
	}
	switch {
	case !seen:
		return domain.KindText
	case isInt:
		return domain.KindInt
	case isFloat:
		return domain.KindFloat
	case isBool:
		return domain.KindBool
	default:
		return domain.KindText
	}
}

func parseCell(raw string, kind domain.ColumnKind) (any, error) {
	s := strings.TrimSpace(raw)
	if kind != domain.KindText && missing(s) {
		return nil, nil
	}
	switch kind {
	case domain.KindInt:
		return strconv.ParseInt(s, 10, 64)
	case domain.KindFloat:
		return strconv.ParseFloat(s, 64)
	case domain.KindBool:
		return strconv.ParseBool(s)
	case domain.KindTimestamp:
		return domain.ParseTimestamp(s)
	default:
		if missing(s) {
			return nil, nil
		}
		return raw, nil
	}
}

func trimBOM(s string) string { return strings.TrimPrefix(s, "\ufeff") }

func missing(s string) bool {
	return s == "" || s == "NA" || strings.EqualFold(s, "nan")
}

// ratio returns sum/n, or NaN for an empty accumulator.
func ratio(sum float64, n int) float64 {
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
