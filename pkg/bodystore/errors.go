package bodystore

import "errors"

var (
	ErrNotFound           = errors.New("body not found")
	ErrInvalidConfig      = errors.New("invalid body store configuration")
	ErrFailedToLoadConfig = errors.New("failed to load AWS config")
	ErrAccessDenied       = errors.New("access denied")
	ErrServiceUnavailable = errors.New("storage service unavailable")
	ErrBucketNotFound     = errors.New("bucket not found")
)
