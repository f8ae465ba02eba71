package dataset

import (
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/couchcryptid/fishtank-etl/internal/warehouse"
)

// RasterProduct describes one monthly composite loaded from a pixel export.
type RasterProduct struct {
	Name   string
	Table  string
	Band   string
	Column string
	// Scale converts a raw band value before any averaging. Nil keeps it.
	Scale func(float64) float64
	// Finish converts the per-cell mean. Cells for which it reports false
	// are dropped. Nil keeps the mean.
	Finish func(float64) (float64, bool)
}

var (
	// Chlorophyll stores the natural log of mean chlorophyll-a per cell.
	Chlorophyll = RasterProduct{
		Name:   "chlorophyll",
		Table:  "primary_productivity",
		Band:   "CHLA_AVE",
		Column: "log_chla_ave",
		Finish: logPositive,
	}
	// SeaSurfaceTemperature stores band values scaled by 0.01 to degrees C.
	// The legacy loader also added 273.15, which wrote Kelvin into a
	// Celsius column; that offset is not applied here.
	SeaSurfaceTemperature = RasterProduct{
		Name:   "temperature",
		Table:  "sea_surface_temperature",
		Band:   "sea_surface_temperature",
		Column: "temperature_c",
		Scale:  func(v float64) float64 { return 0.01 * v },
	}
)

// RasterProducts lists the supported products by name.
var RasterProducts = map[string]RasterProduct{
	Chlorophyll.Name:           Chlorophyll,
	SeaSurfaceTemperature.Name: SeaSurfaceTemperature,
}

func logPositive(v float64) (float64, bool) {
	if v <= 0 {
		return 0, false
	}
	return math.Log(v), true
}

type pixel struct{ lon, lat float64 }

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) { m.sum += v; m.n++ }
func (m *mean) value() float64 { return ratio(m.sum, m.n) }

// cellMean accumulates pixel means inside one finest-resolution cell.
// Longitudes are unwrapped around the first pixel so cells on the
// antimeridian average correctly.
type cellMean struct {
	value, lat, lon mean
	refLon          float64
}

func (c *cellMean) add(v, lat, lon float64) {
	if c.value.n == 0 {
		c.refLon = lon
	}
	switch {
	case lon-c.refLon > 180:
		lon -= 360
	case c.refLon-lon > 180:
		lon += 360
	}
	c.value.add(v)
	c.lat.add(lat)
	c.lon.add(lon)
}

func (c *cellMean) centroid() (lat, lon float64) {
	lon = c.lon.value()
	switch {
	case lon > 180:
		lon -= 360
	case lon < -180:
		lon += 360
	}
	return c.lat.value(), lon
}

// Raster reads a pixel export with longitude, latitude and band columns,
// averages the band over time per pixel and then over pixels per finest
// cell, and returns one row per cell at the cell's mean position, dated date.
func Raster(r io.Reader, p RasterProduct, date time.Time) (Job, error) {
	pixels, err := readPixels(r, p)
	if err != nil {
		return Job{}, fmt.Errorf("%s raster: %w", p.Name, err)
	}

	order := make([]pixel, 0, len(pixels))
	for px := range pixels {
		order = append(order, px)
	}
	slices.SortFunc(order, func(a, b pixel) int {
		if c := cmp.Compare(a.lon, b.lon); c != 0 {
			return c
		}
		return cmp.Compare(a.lat, b.lat)
	})

	finest := domain.FinestResolution()
	cells := make(map[int64]*cellMean)
	for _, px := range order {
		m := pixels[px]
		key, err := domain.CellKey(px.lat, px.lon, finest)
		if err != nil {
			return Job{}, fmt.Errorf("%s raster: %w", p.Name, err)
		}
		c, ok := cells[key]
		if !ok {
			c = &cellMean{}
			cells[key] = c
		}
		c.add(m.value(), px.lat, px.lon)
	}

	keys := make([]int64, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	b := domain.NewBatch(
		domain.Column{Name: "latitude", Kind: domain.KindFloat},
		domain.Column{Name: "longitude", Kind: domain.KindFloat},
		domain.Column{Name: p.Column, Kind: domain.KindFloat},
		domain.Column{Name: "date", Kind: domain.KindTimestamp},
	)
	day := date.UTC()
	for _, k := range keys {
		c := cells[k]
		v := c.value.value()
		if p.Finish != nil {
			var ok bool
			if v, ok = p.Finish(v); !ok {
				continue
			}
		}
		lat, lon := c.centroid()
		if err := b.Append(lat, lon, v, day); err != nil {
			return Job{}, err
		}
	}

	return Job{Batch: b, Options: warehouse.LoadOptions{
		Table:           p.Table,
		Mode:            domain.WriteAppend,
		LatColumn:       "latitude",
		LonColumn:       "longitude",
		TimestampColumn: "date",
	}}, nil
}

// readPixels returns the time-averaged, scaled band value per pixel. Rows
// with a missing or NaN band value are skipped.
func readPixels(r io.Reader, p RasterProduct) (map[pixel]*mean, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	lonCol, latCol, bandCol := -1, -1, -1
	for i, h := range header {
		switch strings.TrimSpace(trimBOM(h)) {
		case "longitude":
			lonCol = i
		case "latitude":
			latCol = i
		case p.Band:
			bandCol = i
		}
	}
	if lonCol < 0 || latCol < 0 || bandCol < 0 {
		return nil, fmt.Errorf("header %v lacks longitude, latitude or %s", header, p.Band)
	}

	pixels := make(map[pixel]*mean)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		raw := strings.TrimSpace(rec[bandCol])
		if missing(raw) {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", line, p.Band, err)
		}
		if math.IsNaN(v) {
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(rec[lonCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: longitude: %w", line, err)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(rec[latCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: latitude: %w", line, err)
		}
		if p.Scale != nil {
			v = p.Scale(v)
		}
		px := pixel{lon: lon, lat: lat}
		m, ok := pixels[px]
		if !ok {
			m = &mean{}
			pixels[px] = m
		}
		m.add(v)
	}
	return pixels, nil
}
