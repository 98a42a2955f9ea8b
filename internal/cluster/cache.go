package cluster

import (
	"github.com/dgraph-io/ristretto"
)

// Cache holds clustering results keyed by record-set fingerprint so repeat
// requests over an unchanged record set skip the propagation run entirely.
type Cache struct {
	inner *ristretto.Cache
}

// NewCache creates a fingerprint-keyed result cache sized for maxResults
// retained clusterings.
func NewCache(maxResults int64) (*Cache, error) {
	if maxResults <= 0 {
		maxResults = 64
	}
	inner, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxResults * 10,
		MaxCost:     maxResults,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Get returns the cached result for a fingerprint, if still resident.
func (c *Cache) Get(fingerprint string) (*Result, bool) {
	v, ok := c.inner.Get(fingerprint)
	if !ok {
		return nil, false
	}
	result, ok := v.(*Result)
	return result, ok
}

// Set stores a result under its fingerprint. Writes are flushed before
// returning so a Get for the same fingerprint observes the entry.
func (c *Cache) Set(fingerprint string, result *Result) {
	c.inner.Set(fingerprint, result, 1)
	c.inner.Wait()
}

// Close releases the cache's internal goroutines.
func (c *Cache) Close() {
	c.inner.Close()
}
