// Package localfs implements storage.Backend over a local directory tree,
// in the layout the partition grammar describes.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"sensorquery/internal/model"
	"sensorquery/internal/storage"
)

// Backend reads and writes partition files under root. Listing results are
// cached with a short TTL; when a watcher is enabled, a change in any
// directory that existed under root when the watcher started invalidates
// the cache immediately instead of waiting out the TTL, matching the
// original service's data_path watch_mode behavior. Directories created
// later are not watched; a Write through this Backend still invalidates.
type Backend struct {
	root  string
	codec storage.Codec

	mu       sync.RWMutex
	listings map[string]listingEntry
	ttl      time.Duration

	watcher *fsnotify.Watcher
	closeWg sync.WaitGroup
}

type listingEntry struct {
	paths []string
	at    time.Time
}

// Option configures a Backend at construction.
type Option func(*Backend)

// WithListingTTL overrides the default 60s listing cache TTL.
func WithListingTTL(ttl time.Duration) Option {
	return func(b *Backend) { b.ttl = ttl }
}

// WithCodec overrides the default gob codec.
func WithCodec(c storage.Codec) Option {
	return func(b *Backend) { b.codec = c }
}

// New returns a Backend rooted at root. If enableWatcher is true, an
// fsnotify watcher is started over the tree to invalidate the listing
// cache on any write; a watcher failure is logged and degrades to
// TTL-only invalidation rather than failing construction.
func New(root string, enableWatcher bool, opts ...Option) *Backend {
	b := &Backend{
		root:     root,
		codec:    storage.GobCodec(),
		listings: make(map[string]listingEntry),
		ttl:      60 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	if enableWatcher {
		if err := b.startWatcher(); err != nil {
			log.Printf("[localfs] watcher disabled for %s: %v", root, err)
		}
	}
	return b
}

// Close stops the watcher, if one is running.
func (b *Backend) Close() error {
	if b.watcher == nil {
		return nil
	}
	err := b.watcher.Close()
	b.closeWg.Wait()
	return err
}

func (b *Backend) Name() string { return "local" }

func (b *Backend) startWatcher() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := filepath.WalkDir(b.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	}); err != nil {
		w.Close()
		return fmt.Errorf("walk %s: %w", b.root, err)
	}
	b.watcher = w
	b.closeWg.Add(1)
	go b.watchLoop()
	return nil
}

func (b *Backend) watchLoop() {
	defer b.closeWg.Done()
	for {
		select {
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				b.invalidateListings()
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[localfs] watcher error: %v", err)
		}
	}
}

func (b *Backend) invalidateListings() {
	b.mu.Lock()
	b.listings = make(map[string]listingEntry)
	b.mu.Unlock()
}

// List returns every partition path under prefix, relative to root.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	if e, ok := b.listings[prefix]; ok && time.Since(e.at) < b.ttl {
		paths := e.paths
		b.mu.RUnlock()
		return paths, nil
	}
	b.mu.RUnlock()

	dir := filepath.Join(b.root, filepath.FromSlash(prefix))
	pattern := filepath.ToSlash(filepath.Join(dir, "**", "*.parquet"))
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, &model.BackendFaultError{Backend: b.Name(), Path: prefix, Err: err}
	}
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(b.root, m)
		if err != nil {
			continue
		}
		paths = append(paths, filepath.ToSlash(rel))
	}

	b.mu.Lock()
	b.listings[prefix] = listingEntry{paths: paths, at: time.Now()}
	b.mu.Unlock()
	return paths, nil
}

// Exists reports whether path resolves to a regular file under root.
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	fi, err := os.Stat(b.fullPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, &model.BackendFaultError{Backend: b.Name(), Path: path, Err: err}
	}
	return !fi.IsDir(), nil
}

// Stat returns file metadata, or (FileInfo{}, false, nil) if absent.
func (b *Backend) Stat(ctx context.Context, path string) (storage.FileInfo, bool, error) {
	fi, err := os.Stat(b.fullPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storage.FileInfo{}, false, nil
		}
		return storage.FileInfo{}, false, &model.BackendFaultError{Backend: b.Name(), Path: path, Err: err}
	}
	return storage.FileInfo{Path: path, SizeBytes: fi.Size(), ModifiedTime: fi.ModTime()}, true, nil
}

// Read decodes the partition at path, returning an empty batch (no error)
// if the file does not exist.
func (b *Backend) Read(ctx context.Context, path string) (*model.Batch, error) {
	data, err := os.ReadFile(b.fullPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.NewBatch(), nil
		}
		return nil, &model.BackendFaultError{Backend: b.Name(), Path: path, Err: err}
	}
	batch, err := b.codec.Decode(data)
	if err != nil {
		// A corrupt partition file degrades to empty rather than failing
		// the whole read, same contract as a missing file.
		log.Printf("[localfs] corrupt partition %s: %v", path, err)
		return model.NewBatch(), nil
	}
	return batch, nil
}

// Write encodes batch and writes it to path, creating parent directories as
// needed. Used by the rebuilder to materialize aggregated/daily partitions.
func (b *Backend) Write(ctx context.Context, path string, batch *model.Batch) error {
	full := b.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &model.BackendFaultError{Backend: b.Name(), Path: path, Err: err}
	}
	data, err := b.codec.Encode(batch)
	if err != nil {
		return &model.BackendFaultError{Backend: b.Name(), Path: path, Err: err}
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &model.BackendFaultError{Backend: b.Name(), Path: path, Err: err}
	}
	if err := os.Rename(tmp, full); err != nil {
		return &model.BackendFaultError{Backend: b.Name(), Path: path, Err: err}
	}
	b.invalidateListings()
	return nil
}

// Health reports whether root is a readable directory.
func (b *Backend) Health(ctx context.Context) storage.HealthStatus {
	fi, err := os.Stat(b.root)
	if err != nil {
		return storage.HealthStatus{Backend: b.Name(), Healthy: false, Detail: err.Error(), CheckedAt: time.Now()}
	}
	if !fi.IsDir() {
		return storage.HealthStatus{Backend: b.Name(), Healthy: false, Detail: "root is not a directory", CheckedAt: time.Now()}
	}
	return storage.HealthStatus{Backend: b.Name(), Healthy: true, CheckedAt: time.Now()}
}

func (b *Backend) fullPath(path string) string {
	return filepath.Join(b.root, filepath.FromSlash(path))
}
