package domain

import "errors"

var (
	// ErrInvalidIndexFormat is returned when a cell index is not a valid
	// lowercase or uppercase hexadecimal H3 identifier.
	ErrInvalidIndexFormat = errors.New("invalid cell index format")

	// ErrInvalidCoordinate is returned when a latitude or longitude field is
	// missing, non-numeric, or out of range.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrInvalidTimestamp is returned when a timestamp field is missing or has
	// an unsupported type.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrRelationNotFound is returned by key queriers when the dimension table
	// has not been created yet. Resolvers treat it as an empty table.
	ErrRelationNotFound = errors.New("relation does not exist")

	// ErrEmptyAppendBatch is returned when a dimension append is attempted with
	// zero rows. Callers must check the row count before appending.
	ErrEmptyAppendBatch = errors.New("empty dimension append batch")
)
