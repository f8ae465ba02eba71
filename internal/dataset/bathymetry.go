package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/alitto/pond/v2"
	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/couchcryptid/fishtank-etl/internal/warehouse"
	"github.com/ctessum/cdf"
)

// BathymetryTable is the fact table of mean elevation per finest cell.
const BathymetryTable = "bathymetry"

// Grid is a regular elevation grid. Elevation is row-major, one row per
// latitude.
type Grid struct {
	Lat       []float64
	Lon       []float64
	Elevation []float64
}

// ReadGrid reads the lat, lon and elevation variables of a NetCDF classic
// file. Elevation must be dimensioned (lat, lon).
func ReadGrid(rw cdf.ReaderWriterAt) (*Grid, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("open netcdf: %w", err)
	}
	g := &Grid{}
	if g.Lat, err = readVariable(f, "lat"); err != nil {
		return nil, err
	}
	if g.Lon, err = readVariable(f, "lon"); err != nil {
		return nil, err
	}
	if g.Elevation, err = readVariable(f, "elevation"); err != nil {
		return nil, err
	}
	if len(g.Elevation) != len(g.Lat)*len(g.Lon) {
		return nil, fmt.Errorf("elevation has %d values for a %dx%d grid", len(g.Elevation), len(g.Lat), len(g.Lon))
	}
	return g, nil
}

func readVariable(f *cdf.File, name string) ([]float64, error) {
	if !slices.Contains(f.Header.Variables(), name) {
		return nil, fmt.Errorf("netcdf: no variable %q", name)
	}
	n := 1
	for _, l := range f.Header.Lengths(name) {
		n *= l
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("netcdf: read %s: %w", name, err)
	}
	switch v := buf.(type) {
	case []float64:
		return v, nil
	case []float32:
		return widen(v), nil
	case []int32:
		return widen(v), nil
	case []int16:
		return widen(v), nil
	case []int8:
		return widen(v), nil
	default:
		return nil, fmt.Errorf("netcdf: %s has unsupported type %T", name, buf)
	}
}

func widen[T float32 | int32 | int16 | int8](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// cellTotals is one partition's elevation sum and sample count per cell.
type cellTotals map[int64]*mean

// AggregateBathymetry averages elevation per finest cell. Latitude rows are
// split into one partition per worker; partitions are summed concurrently
// and merged afterwards. Non-finite samples are skipped.
func AggregateBathymetry(ctx context.Context, g *Grid, workers int) (map[int64]float64, error) {
	if workers <= 0 {
		return nil, errors.New("aggregate bathymetry: workers must be positive")
	}
	if len(g.Lat) == 0 || len(g.Lon) == 0 {
		return map[int64]float64{}, nil
	}

	pool := pond.NewResultPool[cellTotals](workers)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)

	split := (len(g.Lat) + workers - 1) / workers
	for lo := 0; lo < len(g.Lat); lo += split {
		hi := min(lo+split, len(g.Lat))
		group.SubmitErr(func() (cellTotals, error) {
			return sumRows(ctx, g, lo, hi)
		})
	}

	partials, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("aggregate bathymetry: %w", err)
	}

	merged := make(cellTotals)
	for _, part := range partials {
		for k, m := range part {
			acc, ok := merged[k]
			if !ok {
				acc = &mean{}
				merged[k] = acc
			}
			acc.sum += m.sum
			acc.n += m.n
		}
	}

	out := make(map[int64]float64, len(merged))
	for k, m := range merged {
		out[k] = m.value()
	}
	return out, nil
}

func sumRows(ctx context.Context, g *Grid, lo, hi int) (cellTotals, error) {
	finest := domain.FinestResolution()
	totals := make(cellTotals)
	for i := lo; i < hi; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := g.Elevation[i*len(g.Lon) : (i+1)*len(g.Lon)]
		for j, elev := range row {
			if math.IsNaN(elev) || math.IsInf(elev, 0) {
				continue
			}
			key, err := domain.CellKey(g.Lat[i], g.Lon[j], finest)
			if err != nil {
				return nil, err
			}
			m, ok := totals[key]
			if !ok {
				m = &mean{}
				totals[key] = m
			}
			m.add(elev)
		}
	}
	return totals, nil
}

// Bathymetry aggregates g and returns one row per finest cell at the cell
// centroid with its mean elevation.
func Bathymetry(ctx context.Context, g *Grid, workers int) (Job, error) {
	cells, err := AggregateBathymetry(ctx, g, workers)
	if err != nil {
		return Job{}, err
	}
	keys := make([]int64, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	b := domain.NewBatch(
		domain.Column{Name: "lat", Kind: domain.KindFloat},
		domain.Column{Name: "lon", Kind: domain.KindFloat},
		domain.Column{Name: "elevation", Kind: domain.KindFloat},
	)
	for _, k := range keys {
		lat, lon, err := domain.CellCenter(k)
		if err != nil {
			return Job{}, fmt.Errorf("bathymetry: %w", err)
		}
		if err := b.Append(lat, lon, cells[k]); err != nil {
			return Job{}, err
		}
	}
	return Job{Batch: b, Options: warehouse.LoadOptions{
		Table:     BathymetryTable,
		Mode:      domain.WriteAppend,
		LatColumn: "lat",
		LonColumn: "lon",
	}}, nil
}
