// Package types provides core data types for zipcorpus.
package types

import "fmt"

// Bounds for synthesized records.
const (
	MinLevel    = 1
	MaxLevel    = 100
	MinChildren = 1
	MaxChildren = 10
)

// Record is one synthesized unit serialized as a single archive entry.
// Records are never mutated after creation.
type Record struct {
	// ID is the globally unique identifier supplied by the caller
	ID string `json:"id"`

	// Level is a random attribute in [MinLevel, MaxLevel]
	Level int `json:"level"`

	// Children holds the object names in entry order
	Children []string `json:"children"`
}

// Validate checks that the record respects the synthesis bounds.
func (r Record) Validate() error {
	if r.ID == "" {
		return ErrEmptyIdentifier
	}
	if r.Level < MinLevel || r.Level > MaxLevel {
		return fmt.Errorf("%w: %d", ErrLevelOutOfRange, r.Level)
	}
	if n := len(r.Children); n < MinChildren || n > MaxChildren {
		return fmt.Errorf("%w: %d", ErrChildCountOutOfRange, n)
	}
	return nil
}

// LevelRow is one row of the id/level output table.
type LevelRow struct {
	ID    string
	Level string
}

// String renders the row as it appears in the table, without a newline.
func (r LevelRow) String() string {
	return r.ID + ", " + r.Level
}

// ChildRow is one row of the id/object_name output table.
type ChildRow struct {
	ID   string
	Name string
}

// String renders the row as it appears in the table, without a newline.
func (r ChildRow) String() string {
	return r.ID + ", " + r.Name
}
