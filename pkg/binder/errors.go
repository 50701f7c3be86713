package binder

import "errors"

var (
	// ErrBinderNotApplicable lets a binder opt out of a request.
	ErrBinderNotApplicable = errors.New("binder not applicable")

	ErrInvalidRequest       = errors.New("invalid request")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrRequestTooLarge      = errors.New("request body too large")
)
