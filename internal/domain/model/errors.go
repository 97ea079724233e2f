package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds. The typed errors below match them via errors.Is.
var (
	ErrMissingColumn    = errors.New("missing column")
	ErrAmbiguousColumn  = errors.New("ambiguous column")
	ErrInsufficientData = errors.New("insufficient data")
	ErrNonNumericValue  = errors.New("non-numeric value")
	ErrInvalidRecord    = errors.New("invalid record")
)

// MissingColumnError reports a required canonical metric with no source column.
type MissingColumnError struct {
	Metric string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column for %q", e.Metric)
}

func (e *MissingColumnError) Is(target error) bool { return target == ErrMissingColumn }

// AmbiguousColumnError reports several source columns resolving to one metric.
type AmbiguousColumnError struct {
	Metric  string
	Columns []string
}

func (e *AmbiguousColumnError) Error() string {
	return fmt.Sprintf("ambiguous columns for %q: %s", e.Metric, strings.Join(e.Columns, ", "))
}

func (e *AmbiguousColumnError) Is(target error) bool { return target == ErrAmbiguousColumn }

// InsufficientDataError reports a category with no defined value for a
// required metric. It is fatal for that category only.
type InsufficientDataError struct {
	Category string
	Metric   string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("category %q has no defined values for %q", e.Category, e.Metric)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// NonNumericValueError reports a cell that could not be read as a number.
type NonNumericValueError struct {
	RecordID string
	Metric   string
	Value    string
}

func (e *NonNumericValueError) Error() string {
	return fmt.Sprintf("record %q: %q value %q is not numeric", e.RecordID, e.Metric, e.Value)
}

func (e *NonNumericValueError) Is(target error) bool { return target == ErrNonNumericValue }

// InvalidRecordError reports a row that cannot belong to a category group.
type InvalidRecordError struct {
	Row    int
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

func (e *InvalidRecordError) Is(target error) bool { return target == ErrInvalidRecord }
