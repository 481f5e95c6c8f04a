package evaluation

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/metrics"
)

const defaultReferenceCacheSize = 128

// ReferenceLoader lists stored recordings.
type ReferenceLoader interface {
	ListRecordings(ctx context.Context, motionTypeID string, category model.Category) ([]model.MotionRecording, error)
}

// ReferenceCache keeps the reference matrices of recently evaluated motion
// types. Invalidate must be called after the recordings of a type change.
type ReferenceCache struct {
	loader ReferenceLoader
	cache  *lru.Cache[string, []model.Matrix]

	mu       sync.Mutex
	versions map[string]uint64
}

// NewReferenceCache creates a cache holding up to size motion types.
func NewReferenceCache(loader ReferenceLoader, size int) *ReferenceCache {
	if size <= 0 {
		size = defaultReferenceCacheSize
	}
	cache, err := lru.New[string, []model.Matrix](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &ReferenceCache{loader: loader, cache: cache, versions: make(map[string]uint64)}
}

// Get returns the reference matrices of a motion type. The returned slice is
// shared and must not be modified.
func (c *ReferenceCache) Get(ctx context.Context, motionTypeID string) ([]model.Matrix, error) {
	if refs, ok := c.cache.Get(motionTypeID); ok {
		metrics.RecordReferenceCache(true)
		return refs, nil
	}
	metrics.RecordReferenceCache(false)

	version := c.version(motionTypeID)
	recs, err := c.loader.ListRecordings(ctx, motionTypeID, model.CategoryReference)
	if err != nil {
		return nil, err
	}
	refs := make([]model.Matrix, len(recs))
	for i, rec := range recs {
		refs[i] = rec.Frames
	}

	// Skip caching when an invalidation raced with the load.
	c.mu.Lock()
	if c.versions[motionTypeID] == version {
		c.cache.Add(motionTypeID, refs)
	}
	c.mu.Unlock()
	return refs, nil
}

// Invalidate drops the cached references of a motion type.
func (c *ReferenceCache) Invalidate(motionTypeID string) {
	c.mu.Lock()
	c.versions[motionTypeID]++
	c.cache.Remove(motionTypeID)
	c.mu.Unlock()
}

// Len returns the number of cached motion types.
func (c *ReferenceCache) Len() int { return c.cache.Len() }

func (c *ReferenceCache) version(motionTypeID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[motionTypeID]
}
