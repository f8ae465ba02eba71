package domain

import (
	"fmt"
	"math"
	"slices"

	"github.com/ctessum/geom"
	"github.com/uber/h3-go/v4"
)

// Resolutions are the H3 resolutions every spatial fact is keyed at, coarse to fine.
var Resolutions = []int{2, 4, 6}

// FinestResolution is the last entry of Resolutions.
func FinestResolution() int { return Resolutions[len(Resolutions)-1] }

// ValidResolution reports whether r is one of the maintained resolutions.
func ValidResolution(r int) bool { return slices.Contains(Resolutions, r) }

// CellKey locates a point in the grid at the given resolution and returns the
// cell's integer key. Longitudes outside [-180, 180] wrap.
func CellKey(lat, lon float64, resolution int) (int64, error) {
	if !finite(lat) || !finite(lon) || lat < -90 || lat > 90 || lon < -360 || lon > 360 {
		return 0, fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinate, lat, lon)
	}
	cell := h3.LatLngToCell(h3.NewLatLng(lat, lon), resolution)
	return int64(cell), nil
}

// CellCenter returns the centroid of the cell with the given key.
func CellCenter(key int64) (lat, lon float64, err error) {
	cell := h3.Cell(key)
	if !cell.IsValid() {
		return 0, 0, fmt.Errorf("%w: %q is not a valid cell", ErrInvalidIndexFormat, KeyToIndex(key))
	}
	ll := cell.LatLng()
	return ll.Lat, ll.Lng, nil
}

// AnnotateSpatial adds an h3_key_<r> column for every resolution, computed
// from the named latitude and longitude columns. Existing key columns are
// overwritten, so annotating twice yields the same result.
func AnnotateSpatial(b *Batch, latCol, lonCol string) error {
	lc, ok := b.ColumnIndex(latCol)
	if !ok {
		return fmt.Errorf("%w: missing column %q", ErrInvalidCoordinate, latCol)
	}
	gc, ok := b.ColumnIndex(lonCol)
	if !ok {
		return fmt.Errorf("%w: missing column %q", ErrInvalidCoordinate, lonCol)
	}

	keys := make([][]any, len(Resolutions))
	for r := range keys {
		keys[r] = make([]any, b.Len())
	}
	for i, row := range b.Rows() {
		lat, ok := asFloat(row[lc])
		if !ok {
			return fmt.Errorf("%w: row %d column %q has %T", ErrInvalidCoordinate, i, latCol, row[lc])
		}
		lon, ok := asFloat(row[gc])
		if !ok {
			return fmt.Errorf("%w: row %d column %q has %T", ErrInvalidCoordinate, i, lonCol, row[gc])
		}
		for r, res := range Resolutions {
			k, err := CellKey(lat, lon, res)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			keys[r][i] = k
		}
	}

	for r, res := range Resolutions {
		if err := b.SetColumn(Column{Name: SpatialKeyColumn(res), Kind: KindInt}, keys[r]); err != nil {
			return err
		}
	}
	return nil
}

// SpatialSchema is the dimension schema for one resolution.
func SpatialSchema(resolution int) DimensionSchema {
	key := SpatialKeyColumn(resolution)
	return DimensionSchema{
		Table:     SpatialTable(resolution),
		KeyColumn: key,
		Columns: []Column{
			{Name: key, Kind: KindInt},
			{Name: "geometry", Kind: KindGeometry},
		},
	}
}

// MaterializeSpatial expands new cell keys into dimension rows carrying the
// antimeridian-corrected cell polygon.
func MaterializeSpatial(keys KeySet, resolution int) (DimensionRows, error) {
	if !ValidResolution(resolution) {
		return DimensionRows{}, fmt.Errorf("materialize spatial: unsupported resolution %d", resolution)
	}
	out := DimensionRows{Schema: SpatialSchema(resolution), Rows: make([][]any, 0, keys.Len())}
	for _, k := range keys.Sorted() {
		ring, err := Boundary(KeyToIndex(k))
		if err != nil {
			return DimensionRows{}, fmt.Errorf("materialize spatial: %w", err)
		}
		out.Rows = append(out.Rows, []any{k, geom.Polygon{ring}})
	}
	return out, nil
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	default:
		return 0, false
	}
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
