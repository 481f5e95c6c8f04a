package dedupe

type settings struct {
	maxSize int
}

// Option applies a configuration option to NewInMemoryDeduper.
type Option func(*settings)

// WithMaxSize sets the maximum number of keys to keep in memory.
// If maxSize > 0: bounded window, oldest keys are evicted first.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(s *settings) {
		s.maxSize = maxSize
	}
}
