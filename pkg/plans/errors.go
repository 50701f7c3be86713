package plans

import "errors"

var (
	ErrUnknownPlan        = errors.New("unknown plan")
	ErrInvalidPlan        = errors.New("invalid plan definition")
	ErrEmptyCatalog       = errors.New("plan catalog is empty")
	ErrNotMonotonic       = errors.New("plan catalog is not monotonic")
	ErrInvalidCatalogFile = errors.New("invalid plan catalog file")
)
