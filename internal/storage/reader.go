package storage

import (
	"context"
	"log"
	"sync"

	"sensorquery/internal/model"
)

// daqidAlias is the legacy column name the ingestion pipeline still writes
// to some older partitions; readers normalize it to asset_id so downstream
// grouping never has to know about it.
const daqidAlias = "daqid"

// Reader fans a partition path list out across a bounded worker pool and
// concatenates the results. A path whose backend reports it missing
// contributes an empty batch rather than aborting the read, per the
// missing-file-as-empty-batch contract every Backend implements.
type Reader struct {
	backend    Backend
	maxWorkers int
}

// NewReader returns a Reader bounded to maxWorkers concurrent reads against
// backend. maxWorkers <= 0 is treated as 1.
func NewReader(backend Backend, maxWorkers int) *Reader {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Reader{backend: backend, maxWorkers: maxWorkers}
}

// ReadMany reads every path in paths, normalizes the daqid/asset_id alias,
// and concatenates the results in input order. A per-path read error is
// logged and treated as an empty contribution; it never fails the whole
// call, mirroring the executor's "backend faults degrade, never propagate"
// rule.
func (r *Reader) ReadMany(ctx context.Context, paths []string) *model.Batch {
	if len(paths) == 0 {
		return model.NewBatch()
	}

	batches := make([]*model.Batch, len(paths))
	sem := make(chan struct{}, r.maxWorkers)
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				batches[i] = model.NewBatch()
				return
			}
			b, err := r.backend.Read(ctx, path)
			if err != nil {
				log.Printf("[storage] %s: read %s failed: %v", r.backend.Name(), path, err)
				batches[i] = model.NewBatch()
				return
			}
			batches[i] = aliasDaqid(b)
		}(i, path)
	}
	wg.Wait()

	return model.Concat(batches...)
}

// aliasDaqid renames a "daqid" column to "asset_id" in place, preferring an
// existing asset_id column when both are present.
func aliasDaqid(b *model.Batch) *model.Batch {
	if b == nil {
		return model.NewBatch()
	}
	col, ok := b.Columns[daqidAlias]
	if !ok {
		return b
	}
	if _, hasAssetID := b.Columns["asset_id"]; !hasAssetID {
		b.Columns["asset_id"] = col
	}
	delete(b.Columns, daqidAlias)
	return b
}
