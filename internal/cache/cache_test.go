package cache

import (
	"testing"
	"time"

	"sensorquery/internal/model"
)

func sampleBatch(rows int) *model.Batch {
	bd := model.NewBuilder()
	base := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		bd.AddRow(base.Add(time.Duration(i)*time.Second), nil, map[string]float64{"value": float64(i)})
	}
	return bd.Build()
}

func TestCachePutGetRoundTrip(t *testing.T) {
	t.Parallel()
	c := New(1<<20, 100, time.Hour)

	c.Put("fp-1", sampleBatch(10))
	got, ok := c.Get("fp-1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Rows != 10 {
		t.Fatalf("expected 10 rows round-tripped, got %d", got.Rows)
	}
}

func TestCacheGetMissTracksFrequency(t *testing.T) {
	t.Parallel()
	c := New(1<<20, 100, time.Hour)
	c.Get("absent")
	if c.TrackedQueryCount() != 1 {
		t.Fatalf("expected a miss to still be tracked for adaptive TTL, got %d tracked", c.TrackedQueryCount())
	}
	stats := c.Stats()
	if stats.Misses != 1 {
		t.Fatalf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestCacheExpiredEntryIsEvictedOnGet(t *testing.T) {
	t.Parallel()
	c := New(1<<20, 100, time.Millisecond)
	c.Put("fp-1", sampleBatch(1))
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("fp-1")
	if ok {
		t.Fatal("expected expired entry to miss")
	}
	if c.Stats().Entries != 0 {
		t.Fatalf("expected expired entry to be evicted, got %d entries", c.Stats().Entries)
	}
}

func TestCacheEvictsLRUWhenEntryCapExceeded(t *testing.T) {
	t.Parallel()
	c := New(1<<30, 2, time.Hour)
	c.Put("a", sampleBatch(1))
	c.Put("b", sampleBatch(1))
	c.Put("c", sampleBatch(1))

	if c.Stats().Entries > 2 {
		t.Fatalf("expected entry cap of 2 to hold, got %d", c.Stats().Entries)
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected least-recently-used entry 'a' to have been evicted")
	}
}

func TestCacheEvictsByByteSizeCap(t *testing.T) {
	t.Parallel()
	c := New(1, 1000, time.Hour) // 1 byte budget: no encoded batch fits, so nothing is retained
	c.Put("a", sampleBatch(50))
	c.Put("b", sampleBatch(50))

	if c.Stats().Entries > 1 {
		t.Fatalf("expected byte-size cap to bound entries, got %d", c.Stats().Entries)
	}
}

func TestCacheCleanupExpiredRemovesStaleEntries(t *testing.T) {
	t.Parallel()
	c := New(1<<20, 100, time.Millisecond)
	c.Put("a", sampleBatch(1))
	time.Sleep(5 * time.Millisecond)

	removed := c.CleanupExpired()
	if removed != 1 {
		t.Fatalf("expected 1 expired entry removed, got %d", removed)
	}
}

func TestCacheAdaptiveTTLGrowsWithFrequency(t *testing.T) {
	t.Parallel()
	tracker := NewFrequencyTracker()
	for i := 0; i < 11; i++ {
		tracker.Track("hot")
	}
	got := tracker.AdaptiveTTL("hot", time.Minute)
	if got != 3*time.Minute {
		t.Fatalf("expected tripled TTL for a hot key, got %v", got)
	}
}

func TestShouldCacheAdmissionPolicy(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name          string
		enabled       bool
		maxSizeMB     int
		sensorCount   int
		durationHours float64
		resultSizeMB  float64
		want          bool
	}{
		{"disabled cache always rejects", false, 512, 1, 2, 1, false},
		{"oversized result rejected", true, 512, 1, 2, 300, false},
		{"short range rejected", true, 512, 1, 0.01, 1, false},
		{"ordinary query accepted", true, 512, 1, 2, 1, true},
		{"multi-sensor query accepted", true, 512, 9, 2, 1, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ShouldCache(c.enabled, c.maxSizeMB, c.sensorCount, c.durationHours, c.resultSizeMB)
			if got != c.want {
				t.Fatalf("ShouldCache() = %v, want %v", got, c.want)
			}
		})
	}
}
