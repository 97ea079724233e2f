package pipeline

import "errors"

// Sentinel error kinds for this package.
var (
	ErrNoScorableData = errors.New("no category could be scored")
)
