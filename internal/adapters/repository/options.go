package repository

// DefaultCapacity is the number of runs kept when no capacity is set.
const DefaultCapacity = 32

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithCapacity bounds the number of cached runs.
func WithCapacity(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}
