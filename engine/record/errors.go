package record

import "errors"

// Sentinel errors shared across adapters.
var (
	// ErrNotConnected is returned by any adapter operation invoked before a
	// successful Connect, and never swallowed into an empty result.
	ErrNotConnected = errors.New("not connected")

	// ErrNoPrimaryField is returned when a schema-driven backend exposes no
	// primary key field for the target collection.
	ErrNoPrimaryField = errors.New("no primary field in schema")

	// ErrColumnLengthMismatch indicates an internal consistency fault while
	// marshaling records into columns: a built column's length diverged from
	// the number of accepted records.
	ErrColumnLengthMismatch = errors.New("column length mismatch")
)
