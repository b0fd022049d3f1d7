package extractor

import (
	"context"
	"os"
	"time"

	"github.com/Sumatoshi-tech/crashdice/pkg/coverage"
	"github.com/Sumatoshi-tech/crashdice/pkg/lru"
)

// inputKey identifies one version of an input file. A file rewritten in
// place gets a new key.
type inputKey struct {
	path    string
	size    int64
	modTime time.Time
}

func keyOf(input string) (inputKey, bool) {
	info, err := os.Stat(input)
	if err != nil {
		return inputKey{}, false
	}

	return inputKey{path: input, size: info.Size(), modTime: info.ModTime()}, true
}

// Cached memoizes the coverage sets and crash verdicts of an inner
// [Extractor]. Ancestors shared by several crashes run the target once.
// Returned sets are shared between callers and must not be modified.
type Cached struct {
	inner    Extractor
	coverage *lru.Cache[inputKey, coverage.Set]
	verdicts *lru.Cache[inputKey, bool]
}

// NewCached wraps inner with caches of at most maxEntries inputs each.
// A non-positive maxEntries disables caching.
func NewCached(inner Extractor, maxEntries int) *Cached {
	return &Cached{
		inner:    inner,
		coverage: lru.New[inputKey, coverage.Set](maxEntries),
		verdicts: lru.New[inputKey, bool](maxEntries),
	}
}

// Extract returns the cached coverage of input or runs the inner extractor.
// Failures are not cached.
func (c *Cached) Extract(ctx context.Context, input string) (coverage.Set, error) {
	key, ok := keyOf(input)
	if !ok {
		return c.inner.Extract(ctx, input)
	}

	if set, hit := c.coverage.Get(key); hit {
		return set, nil
	}

	set, err := c.inner.Extract(ctx, input)
	if err != nil {
		return nil, err
	}

	c.coverage.Put(key, set)

	return set, nil
}

// Crashes returns the cached verdict for input or runs the inner extractor.
func (c *Cached) Crashes(ctx context.Context, input string) (bool, error) {
	key, ok := keyOf(input)
	if !ok {
		return c.inner.Crashes(ctx, input)
	}

	if crashed, hit := c.verdicts.Get(key); hit {
		return crashed, nil
	}

	crashed, err := c.inner.Crashes(ctx, input)
	if err != nil {
		return false, err
	}

	c.verdicts.Put(key, crashed)

	return crashed, nil
}

// Stats returns the counters of the coverage and verdict caches.
func (c *Cached) Stats() (coverageStats, verdictStats lru.Stats) {
	return c.coverage.Stats(), c.verdicts.Stats()
}
