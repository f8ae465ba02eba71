package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// timestampLayouts are the datetime layouts accepted from tag exports, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
}

// ParseTimestamp parses a timestamp string in one of the supported layouts.
// Values without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// ParseTagPosition deserializes and validates a tag position message.
func ParseTagPosition(raw RawEvent) (TagPosition, error) {
	var rec RawTagPosition
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return TagPosition{}, fmt.Errorf("parse tag position: %w", err)
	}

	ptt := strings.TrimSpace(rec.Ptt)
	if ptt == "" {
		return TagPosition{}, errors.New("parse tag position: missing ptt")
	}
	if rec.Latitude == nil || rec.Longitude == nil {
		return TagPosition{}, fmt.Errorf("parse tag position: %w: missing latitude or longitude", ErrInvalidCoordinate)
	}
	if _, err := CellKey(*rec.Latitude, *rec.Longitude, FinestResolution()); err != nil {
		return TagPosition{}, fmt.Errorf("parse tag position: %w", err)
	}

	observed := raw.Timestamp.UTC()
	if rec.Datetime != "" {
		t, err := ParseTimestamp(rec.Datetime)
		if err != nil {
			return TagPosition{}, fmt.Errorf("parse tag position: %w", err)
		}
		observed = t
	}
	if observed.IsZero() {
		return TagPosition{}, fmt.Errorf("parse tag position: %w: no datetime", ErrInvalidTimestamp)
	}

	return TagPosition{
		Ptt:          ptt,
		Latitude:     *rec.Latitude,
		Longitude:    *rec.Longitude,
		DepthM:       rec.DepthM,
		TemperatureC: rec.TemperatureC,
		Datetime:     observed,
		IngestedAt:   clock.Now().UTC(),
	}, nil
}

// TagPositionBatch builds a fact batch from validated positions.
func TagPositionBatch(positions []TagPosition) (*Batch, error) {
	b := NewBatch(TagStreamColumns...)
	for i, p := range positions {
		if err := b.Append(p.Row()...); err != nil {
			return nil, fmt.Errorf("position %d: %w", i, err)
		}
	}
	return b, nil
}
