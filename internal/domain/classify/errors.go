package classify

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidThreshold = errors.New("invalid threshold")
)
