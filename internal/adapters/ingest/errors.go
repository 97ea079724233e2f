package ingest

import "errors"

// Sentinel kinds for ingestion errors.
var (
	ErrEmptyInput = errors.New("empty input")
	ErrMalformed  = errors.New("malformed input")
)
