package queue

import "errors"

// Common errors
var (
	// ErrRepositoryNil is returned when a nil repository is provided
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrHandlerNil is returned when a worker is created without a handler
	ErrHandlerNil = errors.New("handler cannot be nil")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrPayloadMarshal is returned when payload marshaling fails
	ErrPayloadMarshal = errors.New("failed to marshal payload to JSON")

	// ErrEntryCreate is returned when entry creation in storage fails
	ErrEntryCreate = errors.New("failed to create entry in storage")

	// ErrNoEntryToClaim is returned by repositories when no entry is due
	ErrNoEntryToClaim = errors.New("no entry to claim")

	// ErrEntryNotFound is returned when an entry or dead entry does not exist
	ErrEntryNotFound = errors.New("entry not found")

	// ErrEntryNotProcessing is returned when completing an entry that is not claimed
	ErrEntryNotProcessing = errors.New("entry is not in processing state")

	// ErrEntryExists is returned when an entry with the same ID is already stored
	ErrEntryExists = errors.New("entry already exists")

	// ErrWorkerStarted is returned when starting a running worker
	ErrWorkerStarted = errors.New("worker already started")

	// ErrWorkerNotStarted is returned when stopping a worker that is not running
	ErrWorkerNotStarted = errors.New("worker not started")
)
