package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// RawTagPosition is the JSON payload published by tag receivers. Depth and
// temperature are optional; a position without a datetime falls back to the
// message timestamp.
type RawTagPosition struct {
	Ptt          string   `json:"ptt"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	DepthM       *float64 `json:"depth_m,omitempty"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	Datetime     string   `json:"datetime,omitempty"`
}

// TagPosition is a validated tag observation ready to be keyed and stored.
type TagPosition struct {
	Ptt          string
	Latitude     float64
	Longitude    float64
	DepthM       *float64
	TemperatureC *float64
	Datetime     time.Time
	IngestedAt   time.Time
}

// TagStreamColumns are the fact columns of the streamed tag table, before keys
// are added.
var TagStreamColumns = []Column{
	{Name: "ptt", Kind: KindText},
	{Name: "latitude", Kind: KindFloat},
	{Name: "longitude", Kind: KindFloat},
	{Name: "depth_m", Kind: KindFloat},
	{Name: "temperature_c", Kind: KindFloat},
	{Name: "datetime", Kind: KindTimestamp},
	{Name: "ingested_at", Kind: KindTimestamp},
}

// Row returns the position as a value slice matching TagStreamColumns.
func (p TagPosition) Row() []any {
	return []any{p.Ptt, p.Latitude, p.Longitude, optional(p.DepthM), optional(p.TemperatureC), p.Datetime, p.IngestedAt}
}

func optional(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
