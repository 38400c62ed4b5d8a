package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/poiesic/finrank/core"
)

// DefaultTTL matches how long a search answer is considered fresh.
const DefaultTTL = 5 * time.Minute

// Memory is an in-process result cache with per-entry TTL.
type Memory struct {
	cache *ristretto.Cache[string, []*core.Result]
	ttl   time.Duration
}

// NewMemory creates a cache holding at most maxEntries result lists, each
// expiring ttl after it was stored.
func NewMemory(ttl time.Duration, maxEntries int64) (*Memory, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []*core.Result]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// entries are counted, not sized
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Memory{cache: c, ttl: ttl}, nil
}

// Get returns a copy of the cached results for key.
func (m *Memory) Get(_ context.Context, key string) ([]*core.Result, bool) {
	results, ok := m.cache.Get(key)
	if !ok {
		return nil, false
	}
	return cloneResults(results), true
}

// Set stores a copy of results. Writes become visible asynchronously;
// call Wait to flush them.
func (m *Memory) Set(_ context.Context, key string, results []*core.Result) {
	m.cache.SetWithTTL(key, cloneResults(results), 1, m.ttl)
}

// Wait blocks until buffered writes are applied.
func (m *Memory) Wait() {
	m.cache.Wait()
}

// Invalidate drops every entry.
func (m *Memory) Invalidate(context.Context) error {
	m.cache.Clear()
	return nil
}

// Close stops the cache's background goroutines.
func (m *Memory) Close() {
	m.cache.Close()
}
