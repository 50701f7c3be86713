package storage

import "errors"

var (
	ErrInvalidConfig      = errors.New("storage: invalid configuration")
	ErrUnknownDriver      = errors.New("storage: unknown driver")
	ErrFailedToLoadConfig = errors.New("storage: failed to load AWS config")
	ErrInvalidKey         = errors.New("storage: invalid object key") // path traversal or empty

	ErrObjectNotFound = errors.New("storage: object not found")
	ErrBucketNotFound = errors.New("storage: bucket not found")
	ErrAccessDenied   = errors.New("storage: access denied")
	ErrUnavailable    = errors.New("storage: service temporarily unavailable")

	ErrFailedToWrite  = errors.New("storage: failed to write object")
	ErrFailedToRead   = errors.New("storage: failed to read object")
	ErrFailedToDelete = errors.New("storage: failed to delete object")

	ErrOperationTimeout  = errors.New("storage: operation timed out")
	ErrOperationCanceled = errors.New("storage: operation canceled")
)
