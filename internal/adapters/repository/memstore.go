package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/okian/trendradar/pkg/metrics"
)

// MemoryStore is a bounded, in-memory Store. Runs are immutable once stored;
// readers share them without copying.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	byID     map[string]*Run
	order    []string // insertion order, oldest first

	// latest is read on every "latest" query without taking the lock.
	latest atomic.Pointer[Run]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		capacity: DefaultCapacity,
		byID:     make(map[string]*Run),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, run *Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if run == nil || run.ID == "" || run.Outcome == nil {
		return fmt.Errorf("%w: run needs an id and an outcome", ErrInvalidRun)
	}

	s.mu.Lock()
	if _, exists := s.byID[run.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: duplicate run id %q", ErrInvalidRun, run.ID)
	}
	s.byID[run.ID] = run
	s.order = append(s.order, run.ID)
	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.byID, oldest)
	}
	count := len(s.order)
	s.latest.Store(run)
	s.mu.Unlock()

	metrics.UpdateCachedRuns(count)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, nil
}

// Latest implements Store.
func (s *MemoryStore) Latest(_ context.Context) (*Run, error) {
	if run := s.latest.Load(); run != nil {
		return run, nil
	}
	return nil, ErrNotFound
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.byID[s.order[i]])
	}
	return out
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
