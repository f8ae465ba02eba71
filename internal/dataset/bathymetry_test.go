package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/ctessum/cdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGrid(t *testing.T, lats, lons []float64, elevation []int16) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "grid.nc"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	h := cdf.NewHeader([]string{"lat", "lon"}, []int{len(lats), len(lons)})
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddVariable("elevation", []string{"lat", "lon"}, []int16{0})
	h.Define()

	nc, err := cdf.Create(f, h)
	require.NoError(t, err)
	for name, data := range map[string]any{"lat": lats, "lon": lons, "elevation": elevation} {
		end := nc.Header.Lengths(name)
		_, err := nc.Writer(name, make([]int, len(end)), end).Write(data)
		require.NoError(t, err, name)
	}
	require.NoError(t, cdf.UpdateNumRecs(f))
	return f
}

func TestReadGrid(t *testing.T) {
	f := writeGrid(t, []float64{45, 46}, []float64{200, 201, 202}, []int16{-10, -20, -30, -40, -50, -60})

	g, err := ReadGrid(f)
	require.NoError(t, err)
	assert.Equal(t, []float64{45, 46}, g.Lat)
	assert.Equal(t, []float64{200, 201, 202}, g.Lon)
	assert.Equal(t, []float64{-10, -20, -30, -40, -50, -60}, g.Elevation)
}

func TestAggregateBathymetry_MatchesSingleWorker(t *testing.T) {
	g := &Grid{Lat: make([]float64, 9), Lon: []float64{-150, -149.99, -149.98}}
	for i := range g.Lat {
		g.Lat[i] = 45 + float64(i)*0.01
		for j := range g.Lon {
			g.Elevation = append(g.Elevation, float64(-100*i-j))
		}
	}

	serial, err := AggregateBathymetry(context.Background(), g, 1)
	require.NoError(t, err)
	parallel, err := AggregateBathymetry(context.Background(), g, 4)
	require.NoError(t, err)

	require.Equal(t, len(serial), len(parallel))
	for k, v := range serial {
		assert.InDelta(t, v, parallel[k], 1e-9)
	}
}

func TestAggregateBathymetry_MeanPerCell(t *testing.T) {
	lat, lon := cellCenter(t, 45, -150)
	g := &Grid{Lat: []float64{lat, lat + 0.001}, Lon: []float64{lon}, Elevation: []float64{-100, -300}}

	cells, err := AggregateBathymetry(context.Background(), g, 2)
	require.NoError(t, err)

	k, err := domain.CellKey(lat, lon, domain.FinestResolution())
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.InDelta(t, -200, cells[k], 1e-9)
}

func TestAggregateBathymetry_RejectsZeroWorkers(t *testing.T) {
	_, err := AggregateBathymetry(context.Background(), &Grid{}, 0)
	assert.Error(t, err)
}

func TestBathymetry_RowsAtCellCentroids(t *testing.T) {
	g := &Grid{Lat: []float64{45}, Lon: []float64{-150, 170}, Elevation: []float64{-4000, -2000}}

	job, err := Bathymetry(context.Background(), g, 2)
	require.NoError(t, err)

	assert.Equal(t, BathymetryTable, job.Options.Table)
	assert.Equal(t, "lat", job.Options.LatColumn)
	require.Equal(t, 2, job.Batch.Len())
	for i := range job.Batch.Len() {
		lat, _ := job.Batch.Value(i, "lat")
		lon, _ := job.Batch.Value(i, "lon")
		k, err := domain.CellKey(lat.(float64), lon.(float64), domain.FinestResolution())
		require.NoError(t, err)
		clat, clon, err := domain.CellCenter(k)
		require.NoError(t, err)
		assert.InDelta(t, clat, lat, 1e-9)
		assert.InDelta(t, clon, lon, 1e-9)
	}
}
