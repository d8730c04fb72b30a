// Package storage defines the pluggable backend contract for reading and
// writing partition files, and a bounded-concurrency Reader that fans a
// partition path list out across a worker pool.
package storage

import (
	"context"
	"time"

	"sensorquery/internal/model"
)

// FileInfo describes one partition file without reading its payload.
type FileInfo struct {
	Path         string
	SizeBytes    int64
	ModifiedTime time.Time
}

// HealthStatus is one backend's self-reported condition.
type HealthStatus struct {
	Backend   string
	Healthy   bool
	Detail    string
	CheckedAt time.Time
}

// Backend is implemented by the local filesystem store and the remote
// object store. All methods must tolerate a missing path by returning
// (zero-value, nil) rather than an error — each backend returns an empty
// batch for a missing file itself, not a sentinel error type here.
type Backend interface {
	// Name identifies the backend in logs and health reports.
	Name() string

	// List returns every partition path under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether path currently resolves to a readable file.
	Exists(ctx context.Context, path string) (bool, error)

	// Stat returns metadata for path without reading its contents. Returns
	// (FileInfo{}, false, nil) if path does not exist.
	Stat(ctx context.Context, path string) (FileInfo, bool, error)

	// Read decodes the partition file at path into a Batch. Returns an
	// empty, non-nil Batch (not an error) when path does not exist.
	Read(ctx context.Context, path string) (*model.Batch, error)

	// Health reports the backend's current connectivity.
	Health(ctx context.Context) HealthStatus
}

// Writer is implemented by backends the Rebuilder can write derived
// aggregated/daily partitions to. The local and remote backends both
// implement it; a read replica backend would not.
type Writer interface {
	Write(ctx context.Context, path string, batch *model.Batch) error
}
