package store

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist or is not
	// visible to the acting user.
	ErrNotFound = errors.New("record not found")

	// ErrUnknownEntity indicates an entity type with no registered table.
	ErrUnknownEntity = errors.New("unknown entity type")

	// ErrSnapshotMissing indicates no snapshot has been generated yet.
	ErrSnapshotMissing = errors.New("no snapshot available")
)
