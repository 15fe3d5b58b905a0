package types

import "errors"

// Record-related errors
var (
	// ErrEmptyIdentifier is returned when a record is built without an id
	ErrEmptyIdentifier = errors.New("empty record identifier")

	// ErrLevelOutOfRange is returned when a record level is outside [MinLevel, MaxLevel]
	ErrLevelOutOfRange = errors.New("record level out of range")

	// ErrChildCountOutOfRange is returned when a record has too few or too many children
	ErrChildCountOutOfRange = errors.New("record child count out of range")
)
