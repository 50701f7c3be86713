package store

import "errors"

var (
	ErrNotFound  = errors.New("store: document not found")
	ErrDuplicate = errors.New("store: duplicate document")
	ErrInvalidID = errors.New("store: invalid id")
)
