package cache

import (
	"sort"
	"sync"
	"time"
)

// PopularEntry is one row of the frequency tracker's top-N report, used for
// cache-warming decisions.
type PopularEntry struct {
	Key        string
	Frequency  int
	LastAccess time.Time
}

// FrequencyTracker counts lookups per fingerprint, independent of and
// lock-separate from the LRU's own mutex — a burst of Track calls never
// contends with eviction bookkeeping.
type FrequencyTracker struct {
	mu         sync.Mutex
	frequency  map[string]int
	lastAccess map[string]time.Time
}

// NewFrequencyTracker returns an empty tracker.
func NewFrequencyTracker() *FrequencyTracker {
	return &FrequencyTracker{
		frequency:  make(map[string]int),
		lastAccess: make(map[string]time.Time),
	}
}

// Track records one lookup attempt against key, hit or miss alike.
func (f *FrequencyTracker) Track(key string) {
	f.mu.Lock()
	f.frequency[key]++
	f.lastAccess[key] = time.Now()
	f.mu.Unlock()
}

// AdaptiveTTL scales base by how often key has been looked up: more than
// 10 lookups triples it, more than 5 doubles it, otherwise it is
// unchanged.
func (f *FrequencyTracker) AdaptiveTTL(key string, base time.Duration) time.Duration {
	f.mu.Lock()
	freq := f.frequency[key]
	f.mu.Unlock()

	switch {
	case freq > 10:
		return base * 3
	case freq > 5:
		return base * 2
	default:
		return base
	}
}

// Cleanup drops tracking entries whose last access is older than maxAge.
func (f *FrequencyTracker) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	f.mu.Lock()
	defer f.mu.Unlock()

	var stale []string
	for key, at := range f.lastAccess {
		if at.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		delete(f.frequency, key)
		delete(f.lastAccess, key)
	}
	return len(stale)
}

// Popular returns the limit most-frequently-looked-up keys, most frequent
// first.
func (f *FrequencyTracker) Popular(limit int) []PopularEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := make([]PopularEntry, 0, len(f.frequency))
	for key, freq := range f.frequency {
		entries = append(entries, PopularEntry{Key: key, Frequency: freq, LastAccess: f.lastAccess[key]})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Frequency > entries[j].Frequency })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// TrackedCount reports how many distinct keys are currently tracked.
func (f *FrequencyTracker) TrackedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frequency)
}
