// Package repository keeps recent scoring runs so they can be reclassified
// without recomputing.
package repository

import (
	"context"
	"time"

	"github.com/okian/trendradar/internal/domain/pipeline"
)

// Run is one scored dataset.
type Run struct {
	ID        string
	CreatedAt time.Time
	Duration  time.Duration
	Source    string // upload name or file path, informational
	Rows      int
	Outcome   *pipeline.Outcome
}

// Store provides read/write access to cached runs.
type Store interface {
	// Put stores run, evicting the oldest run when the store is full.
	Put(ctx context.Context, run *Run) error

	// Get returns the run with id.
	// Returns ErrNotFound if the run is unknown or was evicted.
	Get(ctx context.Context, id string) (*Run, error)

	// Latest returns the most recently stored run.
	// Returns ErrNotFound if the store is empty.
	Latest(ctx context.Context) (*Run, error)

	// List returns stored runs, newest first.
	List(ctx context.Context) []*Run

	// Count returns the number of stored runs.
	Count(ctx context.Context) int
}
