package cache

import (
	"container/list"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"sensorquery/internal/model"
	"sensorquery/internal/storage"
)

// entryValue is what each list.Element carries; the payload is kept
// gob-encoded so the byte-size accounting (for MaxSizeBytes) reflects what
// will actually be retained, not a live in-memory Batch's footprint.
type entryValue struct {
	key       string
	data      []byte
	sizeBytes int64
	storedAt  time.Time
	ttl       time.Duration
}

// Stats is a point-in-time snapshot of cache behavior.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
	SizeBytes int64
	HitRate   float64
}

// Cache is the result cache: an LRU ordered by container/list, bounded by
// both total byte size and entry count, with per-entry TTL. Eviction
// runs under one mutex; the frequency tracker that drives adaptive TTL is
// a separate lock so a burst of reads never serializes against it.
type Cache struct {
	mu           sync.Mutex
	order        *list.List
	items        map[string]*list.Element
	sizeBytes    int64
	maxSizeBytes int64
	maxEntries   int
	baseTTL      time.Duration
	codec        storage.Codec

	freq *FrequencyTracker

	hits, misses, evictions atomic.Int64
}

// New returns a Cache bounded by maxSizeBytes and maxEntries, with baseTTL
// as the unadapted entry lifetime.
func New(maxSizeBytes int64, maxEntries int, baseTTL time.Duration) *Cache {
	return &Cache{
		order:        list.New(),
		items:        make(map[string]*list.Element),
		maxSizeBytes: maxSizeBytes,
		maxEntries:   maxEntries,
		baseTTL:      baseTTL,
		codec:        storage.GobCodec(),
		freq:         NewFrequencyTracker(),
	}
}

// Get looks up fingerprint, tracking the lookup for adaptive-TTL purposes
// whether it hits or misses. An expired entry or one that fails to decode
// is evicted and counted as a miss.
func (c *Cache) Get(fingerprint string) (*model.Batch, bool) {
	c.freq.Track(fingerprint)

	c.mu.Lock()
	elem, ok := c.items[fingerprint]
	if !ok {
		c.misses.Add(1)
		c.mu.Unlock()
		return nil, false
	}
	ev := elem.Value.(*entryValue)
	if time.Since(ev.storedAt) > ev.ttl {
		c.removeLocked(elem)
		c.misses.Add(1)
		c.mu.Unlock()
		return nil, false
	}
	data := ev.data
	c.order.MoveToFront(elem)
	c.mu.Unlock()

	batch, err := c.codec.Decode(data)
	if err != nil {
		log.Printf("[cache] corrupt payload for %s: %v", fingerprint, err)
		c.mu.Lock()
		if elem2, ok := c.items[fingerprint]; ok {
			c.removeLocked(elem2)
		}
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return batch, true
}

// Put inserts batch under fingerprint, evicting least-recently-used
// entries until the new entry fits within both the byte-size and
// entry-count caps. A payload larger than the whole byte cap is rejected
// (returns false). Its TTL is the frequency tracker's adaptive TTL for
// this fingerprint as of this call.
func (c *Cache) Put(fingerprint string, batch *model.Batch) bool {
	data, err := c.codec.Encode(batch)
	if err != nil {
		log.Printf("[cache] failed to encode result for %s: %v", fingerprint, err)
		return false
	}
	size := int64(len(data))
	if size > c.maxSizeBytes {
		return false
	}
	ttl := c.freq.AdaptiveTTL(fingerprint, c.baseTTL)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[fingerprint]; ok {
		c.removeLocked(elem)
	}
	c.makeSpaceLocked(size)

	ev := &entryValue{key: fingerprint, data: data, sizeBytes: size, storedAt: time.Now(), ttl: ttl}
	elem := c.order.PushFront(ev)
	c.items[fingerprint] = elem
	c.sizeBytes += size
	return true
}

// makeSpaceLocked evicts from the back of order until needed bytes fit
// under both caps. Caller must hold c.mu.
func (c *Cache) makeSpaceLocked(needed int64) {
	for c.order.Len() > 0 && (c.sizeBytes+needed > c.maxSizeBytes || len(c.items) >= c.maxEntries) {
		oldest := c.order.Back()
		c.removeLocked(oldest)
		c.evictions.Add(1)
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	ev := elem.Value.(*entryValue)
	c.order.Remove(elem)
	delete(c.items, ev.key)
	c.sizeBytes -= ev.sizeBytes
}

// Clear drops every cached entry. Frequency tracking is left intact;
// ClearAll clears both.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.order = list.New()
	c.items = make(map[string]*list.Element)
	c.sizeBytes = 0
	c.mu.Unlock()
}

// ClearAll clears cached entries and frequency tracking.
func (c *Cache) ClearAll() {
	c.Clear()
	c.freq = NewFrequencyTracker()
}

// CleanupExpired removes entries past their TTL without waiting for a Get
// to discover them, the cache's housekeeping pass.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*list.Element
	for _, elem := range c.items {
		ev := elem.Value.(*entryValue)
		if time.Since(ev.storedAt) > ev.ttl {
			expired = append(expired, elem)
		}
	}
	for _, elem := range expired {
		c.removeLocked(elem)
	}
	return len(expired)
}

// CleanupFrequencyTracking drops frequency records idle longer than
// maxAge, the counterpart housekeeping pass for the tracker.
func (c *Cache) CleanupFrequencyTracking(maxAge time.Duration) int {
	return c.freq.Cleanup(maxAge)
}

// PopularQueries returns the limit most-frequently-looked-up fingerprints.
func (c *Cache) PopularQueries(limit int) []PopularEntry {
	return c.freq.Popular(limit)
}

// Stats returns a snapshot of cache behavior.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := len(c.items)
	size := c.sizeBytes
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		Entries:   entries,
		SizeBytes: size,
		HitRate:   hitRate,
	}
}

// TrackedQueryCount reports how many distinct fingerprints the frequency
// tracker currently holds, regardless of whether they're still cached.
func (c *Cache) TrackedQueryCount() int {
	return c.freq.TrackedCount()
}
