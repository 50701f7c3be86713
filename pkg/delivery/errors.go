package delivery

import "errors"

var (
	ErrInvalidConfig      = errors.New("delivery: invalid config")
	ErrUnknownKind        = errors.New("delivery: unknown provider kind")
	ErrFailedToLoadConfig = errors.New("delivery: failed to load aws config")
	ErrIdentityNotFound   = errors.New("delivery: sender identity not found")
)
