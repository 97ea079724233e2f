package schema

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidSchema = errors.New("invalid schema")
)
