// Package dedupe tracks recording keys so at-least-once deliveries are stored once.
package dedupe

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxSize = 10_000

// Deduper records seen recording keys.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID so a redelivery can be processed. Used when a
	// key was recorded but the recording never reached the store.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// windowDeduper keeps the most recent keys in a bounded LRU window.
// Checking a key does not refresh it, so the oldest recorded key is evicted first.
type windowDeduper struct {
	window *lru.Cache[string, struct{}]
}

// unboundedDeduper keeps every key.
type unboundedDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewInMemoryDeduper creates a deduper. WithMaxSize(n <= 0) selects unbounded mode.
func NewInMemoryDeduper(opts ...Option) Deduper {
	cfg := &settings{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.maxSize <= 0 {
		return &unboundedDeduper{seen: make(map[string]struct{})}
	}
	window, err := lru.New[string, struct{}](cfg.maxSize)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &windowDeduper{window: window}
}

func (d *windowDeduper) SeenAndRecord(_ context.Context, id string) bool {
	seen, _ := d.window.ContainsOrAdd(id, struct{}{})
	return seen
}

func (d *windowDeduper) Unrecord(_ context.Context, id string) {
	d.window.Remove(id)
}

func (d *windowDeduper) Size() int64 {
	return int64(d.window.Len())
}

func (d *unboundedDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	return false
}

func (d *unboundedDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

func (d *unboundedDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
