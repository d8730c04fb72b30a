package cache

// ShouldCache is the admission policy deciding whether a query result is
// worth the cache's limited space: reject results that would dominate the
// cache, reject very short ranges (likely real-time polling that won't
// benefit from a second hit before it's stale). Multi-sensor queries
// (>5 sensors) are the policy's explicit target — they're the most
// expensive to recompute — but anything clearing the two gates above is
// cached regardless of sensor count.
func ShouldCache(enabled bool, maxSizeMB int, sensorCount int, durationHours, resultSizeMB float64) bool {
	if !enabled {
		return false
	}
	if resultSizeMB > float64(maxSizeMB)*0.5 {
		return false
	}
	if durationHours < 0.1 { // under ~6 minutes
		return false
	}
	return true
}
