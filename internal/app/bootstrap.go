// Package app wires configuration into the backends, cache, executor, and
// rebuilder the cmd/ entry points run — the construction both the query
// service and the offline rebuild tool share.
package app

import (
	"fmt"
	"time"

	"sensorquery/internal/cache"
	"sensorquery/internal/config"
	"sensorquery/internal/query"
	"sensorquery/internal/rebuild"
	"sensorquery/internal/stats"
	"sensorquery/internal/storage"
	"sensorquery/internal/storage/azureblob"
	"sensorquery/internal/storage/localfs"
)

// App bundles everything one process needs: the executor every query goes
// through, and the rebuilder the offline tool drives. Both share the same
// backends and, where local storage is active, the same writer.
type App struct {
	Executor  *query.Executor
	Rebuilder *rebuild.Rebuilder
	Counters  *stats.Counters
}

// Build constructs the backends cfg.StorageMode calls for, then the cache,
// executor, and rebuilder on top of them.
func Build(cfg config.Config) (*App, error) {
	local, remote, err := buildBackends(cfg)
	if err != nil {
		return nil, err
	}

	c := cache.New(cfg.Cache.SizeMaxBytes(), cfg.Cache.MaxEntries, cfg.Cache.TTL())
	counters := stats.New()
	exec := query.NewExecutor(cfg, local, remote, c, counters)

	var writer rebuild.Target
	switch {
	case local != nil:
		writer = local.(rebuild.Target)
	case remote != nil:
		writer = remote.(rebuild.Target)
	}

	app := &App{Executor: exec, Counters: counters}
	if writer != nil {
		app.Rebuilder = rebuild.New(exec, writer)
	}
	return app, nil
}

// buildBackends constructs the local filesystem and/or Azure Blob backends
// cfg.StorageMode calls for. Either return value may be nil depending on
// the mode.
func buildBackends(cfg config.Config) (storage.Backend, storage.Backend, error) {
	var local, remote storage.Backend

	if cfg.StorageMode == config.StorageModeLocal || cfg.StorageMode == config.StorageModeHybrid {
		local = localfs.New(cfg.LocalStorage.DataPath, cfg.LocalStorage.EnableWatcher)
	}

	if cfg.StorageMode == config.StorageModeRemote || cfg.StorageMode == config.StorageModeHybrid {
		backend, err := azureblob.New(azureblob.Config{
			BlobEndpoint:      cfg.Azure.BlobEndpoint,
			SASToken:          cfg.Azure.SASToken,
			StorageAccount:    cfg.Azure.StorageAccount,
			StorageKey:        cfg.Azure.StorageKey,
			ContainerName:     cfg.Azure.ContainerName,
			RequestsPerSecond: cfg.Azure.RequestsPerSecond,
			ListingTTL:        300 * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build azure backend: %w", err)
		}
		remote = backend
	}

	return local, remote, nil
}
