// Package domain holds the warehouse data model and the pure parts of
// dimension-key reconciliation.
//
// # Spatial keys
//
// Every spatial fact is located in the H3 hexagonal grid at each of
// [Resolutions]. A cell's string index (for example "822d57fffffffff") is
// its hex form; the integer key stored in the warehouse is the same value
// parsed as base 16. [IndexToKey] and [KeyToIndex] convert between the two.
//
// Cell polygons are stored as closed (lon, lat) rings. Cells crossing the
// antimeridian would otherwise span almost the whole globe, so any ring
// whose longitudes span more than 180 degrees is shifted onto [0, 360).
//
// # Date keys
//
// A date key is the Unix timestamp of 00:00:00 UTC on the fact's UTC day:
//
//	key = ts - floormod(ts, 86400)
//
// # Dimension tables
//
//	h3_resolution_<r>  (h3_key_<r> BIGINT, geometry POLYGON)
//	dates              (date_key BIGINT, date TIMESTAMP, year, month, day)
//
// Dimension tables are append-only and keyed by the dimension key. Fact
// batches are annotated with keys, the missing keys are materialized into
// [DimensionRows], and only those rows are appended.
package domain
