package resource

import "errors"

// Errors returned by table operations.
var (
	// ErrBadResource indicates an ID that does not resolve to a resource of
	// the expected kind.
	ErrBadResource = errors.New("bad resource id")

	// ErrNotReadable indicates a read from a write-only resource.
	ErrNotReadable = errors.New("resource is not readable")

	// ErrNotWritable indicates a write to a read-only resource.
	ErrNotWritable = errors.New("resource is not writable")

	// ErrTableClosed is returned when adding to a closed table.
	ErrTableClosed = errors.New("resource table is closed")

	// ErrTableFull is returned once every ID has been handed out.
	ErrTableFull = errors.New("resource table has no free ids")
)
