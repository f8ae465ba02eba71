package dataset

import (
	"fmt"
	"io"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
	"github.com/couchcryptid/fishtank-etl/internal/warehouse"
)

// Tagging fact tables.
const (
	TagTracksTable  = "tag_tracks"
	TagContextTable = "tag_context"
	TagDataTable    = "tag_data"
)

// TagTracks reads the most-likely-tracks export. Rows are keyed by their
// Date, which is dropped after keying.
func TagTracks(r io.Reader) (Job, error) {
	b, err := ReadCSV(r, CSVSchema{
		Text:       []string{"Ptt"},
		Timestamps: []string{"Date"},
		Renames: map[string]string{
			"Ptt":                   "ptt",
			"Most.Likely.Latitude":  "latitude",
			"Most.Likely.Longitude": "longitude",
		},
	})
	if err != nil {
		return Job{}, fmt.Errorf("tag tracks: %w", err)
	}
	return Job{Batch: b, Options: warehouse.LoadOptions{
		Table:           TagTracksTable,
		Mode:            domain.WriteReplace,
		TimestampColumn: "Date",
		DropColumns:     []string{"Date"},
	}}, nil
}

// TagInventory reads the deployment inventory. It carries no dimension keys.
func TagInventory(r io.Reader) (Job, error) {
	b, err := ReadCSV(r, CSVSchema{
		Text:       []string{"Ptt"},
		Timestamps: []string{"deploy.date.GMT", "end.date.time.GMT"},
		Renames: map[string]string{
			"Ptt":                         "ptt",
			"tag.model":                   "tag_model",
			"time.series.resolution.min":  "time_resolution_min",
			"fork.length.cm":              "fork_length_cm",
			"deploy.latitude":             "deploy_latitude",
			"deploy.longitude":            "deploy_longitude",
			"End.Latitude":                "end_latitude",
			"End.Longitude":               "end_longitude",
			"hypothetical.data.retrieved": "hypothetical_data_retrieved",
			"data.type":                   "data_type",
			"deploy.date.GMT":             "deploy_date",
			"end.date.time.GMT":           "end_date",
			"Region":                      "region",
		},
	})
	if err != nil {
		return Job{}, fmt.Errorf("tag inventory: %w", err)
	}
	return Job{Batch: b, Options: warehouse.LoadOptions{
		Table: TagContextTable,
		Mode:  domain.WriteReplace,
	}}, nil
}

// TagTimeSeries reads the depth and temperature series, keyed by observation
// date.
func TagTimeSeries(r io.Reader) (Job, error) {
	b, err := ReadCSV(r, CSVSchema{
		Text:       []string{"Ptt"},
		Timestamps: []string{"date.time.GMT"},
		Renames: map[string]string{
			"Ptt":           "ptt",
			"depth.m":       "depth_m",
			"temp.c":        "temperature_c",
			"date.time.GMT": "datetime",
		},
	})
	if err != nil {
		return Job{}, fmt.Errorf("tag time series: %w", err)
	}
	return Job{Batch: b, Options: warehouse.LoadOptions{
		Table:           TagDataTable,
		Mode:            domain.WriteReplace,
		TimestampColumn: "datetime",
	}}, nil
}
