package domain

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/ctessum/geom"
	"github.com/uber/h3-go/v4"
)

// IndexToKey parses an H3 index string as a base-16 integer key.
func IndexToKey(index string) (int64, error) {
	u, err := strconv.ParseUint(index, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIndexFormat, index)
	}
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q overflows int64", ErrInvalidIndexFormat, index)
	}
	return int64(u), nil
}

// KeyToIndex formats a key as a lowercase hex index with no prefix.
func KeyToIndex(key int64) string {
	return strconv.FormatInt(key, 16)
}

// Boundary returns the cell polygon as a closed ring of (lon, lat) points.
// Rings whose raw longitudes span more than 180 degrees are shifted onto
// [0, 360) so cells crossing the antimeridian stay a single polygon.
func Boundary(index string) (geom.Path, error) {
	key, err := IndexToKey(index)
	if err != nil {
		return nil, err
	}
	cell := h3.Cell(key)
	if !cell.IsValid() {
		return nil, fmt.Errorf("%w: %q is not a valid cell", ErrInvalidIndexFormat, index)
	}
	return correctAntimeridian(rawBoundary(cell)), nil
}

// rawBoundary is the library boundary in (lon, lat) order, closed by repeating
// the first vertex.
func rawBoundary(cell h3.Cell) geom.Path {
	verts := cell.Boundary()
	ring := make(geom.Path, 0, len(verts)+1)
	for _, v := range verts {
		ring = append(ring, geom.Point{X: v.Lng, Y: v.Lat})
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return ring
}

func correctAntimeridian(ring geom.Path) geom.Path {
	if lonSpan(ring) <= 180 {
		return ring
	}
	out := slices.Clone(ring)
	for i := range out {
		if out[i].X <= 0 {
			out[i].X += 360
		}
	}
	return out
}

func lonSpan(ring geom.Path) float64 {
	if len(ring) == 0 {
		return 0
	}
	lo, hi := ring[0].X, ring[0].X
	for _, p := range ring[1:] {
		lo = min(lo, p.X)
		hi = max(hi, p.X)
	}
	return hi - lo
}
