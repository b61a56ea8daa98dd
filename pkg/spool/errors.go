package spool

import "errors"

var (
	// ErrInvalidDescriptor is returned when a task descriptor is missing its name or function
	ErrInvalidDescriptor = errors.New("invalid spoolable task descriptor")

	// ErrInvalidSignature is returned when the declared parameters cannot carry the envelope or bulky params
	ErrInvalidSignature = errors.New("invalid spoolable task signature")

	// ErrInvalidArguments is returned when call arguments do not bind to the declared parameters
	ErrInvalidArguments = errors.New("arguments do not match spoolable task parameters")

	// ErrEncodeArguments is returned when call arguments cannot be serialised into a job
	ErrEncodeArguments = errors.New("failed to encode spoolable task arguments")

	// ErrMalformedJob is returned when a job payload cannot be decoded
	ErrMalformedJob = errors.New("malformed spooler job payload")

	// ErrTaskNotRegistered is reported when a job names a task missing from the registry
	ErrTaskNotRegistered = errors.New("spooler task not registered")

	// ErrTaskPanicked wraps a panic recovered from a task body; it is never retried
	ErrTaskPanicked = errors.New("spooled task panicked")

	// ErrNotDeferrable is returned by backends that cannot accept jobs
	ErrNotDeferrable = errors.New("spooler backend cannot defer jobs")

	// ErrArgumentMissing is returned by Call accessors for arguments that were not passed
	ErrArgumentMissing = errors.New("spooled task argument missing")

	// ErrBodyStore is returned when bulky parameters cannot be stored or fetched
	ErrBodyStore = errors.New("spooler body store failure")
)
