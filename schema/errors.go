package schema

import "errors"

// Common schema errors.
var (
	// ErrNoVariant is returned when no register schema variant matches a
	// document.
	ErrNoVariant = errors.New("no matching schema variant")

	// ErrAmbiguousVariant is returned when two or more variants tie at
	// the top score.
	ErrAmbiguousVariant = errors.New("ambiguous schema variant")

	// ErrNotFound is returned when a named schema does not exist.
	ErrNotFound = errors.New("schema not found")
)
