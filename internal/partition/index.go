package partition

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"sensorquery/internal/model"
)

// Lister is the minimal capability the Index needs from a storage backend:
// list every path under prefix. Both the local filesystem backend and the
// Azure Blob backend implement it directly.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// ExistenceChecker is implemented by backends where a speculatively built
// path must be confirmed before being handed to the reader. The local
// backend checks (a stat is cheap); the remote backend does not (a HEAD per
// candidate would dominate latency, and a missing blob already degrades to
// an empty batch at read time).
type ExistenceChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Index resolves a query's (sensors, assets, range, tier) into the ordered
// list of partition paths to read, for one backend. The caller holds one
// Index per active backend (local and/or remote), reads each backend's
// candidates through that backend's own reader, and unions the resulting
// batches.
type Index struct {
	lister   *cachedLister
	verifier ExistenceChecker // nil for backends that skip existence checks
}

// New builds an Index over lister. ttl controls how long a discovered asset
// list is trusted before a fresh listing call is issued; the executor wires
// 60s for the local backend and 300s for the remote backend. verifier may be
// nil.
func New(lister Lister, ttl time.Duration, verifier ExistenceChecker) *Index {
	return &Index{lister: newCachedLister(lister, ttl), verifier: verifier}
}

// InvalidateListingCache drops any cached asset discovery results, used
// after a rebuild writes new partitions under a prefix the index has
// already cached.
func (ix *Index) InvalidateListingCache() {
	ix.lister.clear()
}

// Candidates returns the ordered, duplicate-free partition paths a query
// should attempt against this backend. A nil assets list is resolved via
// discovery against the tier's prefix.
func (ix *Index) Candidates(ctx context.Context, sensors, assets []string, start, end time.Time, tier model.Tier) ([]string, error) {
	if len(sensors) == 0 {
		return nil, nil
	}
	resolvedAssets := assets
	if resolvedAssets == nil {
		var err error
		resolvedAssets, err = ix.discoverAssets(ctx, tier)
		if err != nil {
			return nil, err
		}
	}
	if len(resolvedAssets) == 0 {
		return nil, nil
	}

	var paths []string
	for cursor := granularityFloor(start, tier); cursor.Before(end); cursor = granularityStep(cursor, tier) {
		for _, asset := range resolvedAssets {
			for _, sensor := range sensors {
				path := BuildPath(tier, asset, sensor, cursor)
				if ix.verifier != nil {
					ok, err := ix.verifier.Exists(ctx, path)
					if err != nil || !ok {
						continue
					}
				}
				paths = append(paths, path)
			}
		}
	}
	return paths, nil
}

// reservedPathSegments are tier-prefix literals. The raw tier has no prefix
// of its own, so a listing rooted at "" also surfaces the aggregated/ and
// daily/ subtrees; discoverAssets must not mistake those for raw asset
// directories.
var reservedPathSegments = map[string]bool{"aggregated": true, "daily": true}

// discoverAssets lists every path under the tier's prefix and extracts the
// first path segment (the asset id), deduplicated and sorted.
func (ix *Index) discoverAssets(ctx context.Context, tier model.Tier) ([]string, error) {
	paths, err := ix.lister.List(ctx, tier.PathPrefix())
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	prefix := tier.PathPrefix()
	for _, p := range paths {
		p = strings.TrimPrefix(p, prefix)
		p = strings.TrimPrefix(p, "/")
		segs := strings.SplitN(p, "/", 2)
		if len(segs) == 0 || segs[0] == "" {
			continue
		}
		if tier == model.TierRaw && reservedPathSegments[segs[0]] {
			continue
		}
		if !seen[segs[0]] {
			seen[segs[0]] = true
			out = append(out, segs[0])
		}
	}
	sort.Strings(out)
	return out, nil
}

// DiscoverAssets exposes discoverAssets for discovery operations outside
// query execution (list_assets, rebuild range resolution).
func (ix *Index) DiscoverAssets(ctx context.Context, tier model.Tier) ([]string, error) {
	return ix.discoverAssets(ctx, tier)
}

// cachedLister wraps a Lister with a short TTL, so repeated asset discovery
// within one burst of queries issues one real List call instead of one per
// query.
type cachedLister struct {
	mu    sync.Mutex
	ttl   time.Duration
	inner Lister
	at    map[string]time.Time
	paths map[string][]string
}

func newCachedLister(inner Lister, ttl time.Duration) *cachedLister {
	return &cachedLister{
		inner: inner,
		ttl:   ttl,
		at:    make(map[string]time.Time),
		paths: make(map[string][]string),
	}
}

func (c *cachedLister) List(ctx context.Context, prefix string) ([]string, error) {
	c.mu.Lock()
	if at, ok := c.at[prefix]; ok && time.Since(at) < c.ttl {
		cached := c.paths[prefix]
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	paths, err := c.inner.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.at[prefix] = time.Now()
	c.paths[prefix] = paths
	c.mu.Unlock()
	return paths, nil
}

func (c *cachedLister) clear() {
	c.mu.Lock()
	c.at = make(map[string]time.Time)
	c.paths = make(map[string][]string)
	c.mu.Unlock()
}
