package contacts

import "errors"

var (
	ErrEmptyFile     = errors.New("contact file is empty")
	ErrMalformedFile = errors.New("contact file is not valid CSV")
	ErrInvalidHeader = errors.New("contact file header is invalid")
	ErrNoEmailColumn = errors.New("contact file has no email column")
	ErrTooManyRows   = errors.New("contact file has too many rows")
)
