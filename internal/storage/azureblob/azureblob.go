// Package azureblob implements storage.Backend over Azure Blob Storage,
// the remote cold-storage tier.
package azureblob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"golang.org/x/time/rate"

	"sensorquery/internal/model"
	"sensorquery/internal/storage"
)

// Config carries whatever credential shape the deployment was given: the
// newer blob_endpoint+sas_token pair, or the older storage_account+key
// pair. At least one pair must be set; when both are, the SAS pair is used.
type Config struct {
	BlobEndpoint  string
	SASToken      string
	StorageAccount string
	StorageKey    string
	ContainerName string

	RequestsPerSecond float64 // 0 disables pacing
	ListingTTL        time.Duration
}

// Backend reads and writes blobs in one Azure container. Calls that reach
// the service, other than Health, are paced by a token bucket
// (RequestsPerSecond) to stay under the account's request limits; a List
// answered from the listing cache is not paced. Listings are cached for
// ListingTTL, matching the 300s
// in-process file cache the original backend keeps per prefix.
type Backend struct {
	client        *azblob.Client
	containerName string
	codec         storage.Codec
	limiter       *rate.Limiter

	mu       sync.RWMutex
	listings map[string]listingEntry
	ttl      time.Duration
}

type listingEntry struct {
	paths []string
	at    time.Time
}

// New builds a Backend from cfg, choosing the SAS-token or shared-key
// credential path exactly as the original config resolution does.
func New(cfg Config) (*Backend, error) {
	var client *azblob.Client
	var err error

	switch {
	case cfg.BlobEndpoint != "" && cfg.SASToken != "":
		token := strings.TrimPrefix(cfg.SASToken, "?")
		serviceURL := fmt.Sprintf("%s?%s", cfg.BlobEndpoint, token)
		client, err = azblob.NewClientWithNoCredential(serviceURL, nil)
	case cfg.StorageAccount != "" && cfg.StorageKey != "":
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", cfg.StorageAccount)
		cred, credErr := azblob.NewSharedKeyCredential(cfg.StorageAccount, cfg.StorageKey)
		if credErr != nil {
			return nil, fmt.Errorf("azure shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	default:
		return nil, &model.ConfigurationError{
			Field: "azure",
			Msg:   "either blob_endpoint+sas_token or storage_account+storage_key must be set",
		}
	}
	if err != nil {
		return nil, fmt.Errorf("build azure client: %w", err)
	}

	ttl := cfg.ListingTTL
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	return &Backend{
		client:        client,
		containerName: cfg.ContainerName,
		codec:         storage.GobCodec(),
		limiter:       limiter,
		listings:      make(map[string]listingEntry),
		ttl:           ttl,
	}, nil
}

func (b *Backend) Name() string { return "remote" }

func (b *Backend) wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

// List returns every .parquet blob under prefix.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	if e, ok := b.listings[prefix]; ok && time.Since(e.at) < b.ttl {
		paths := e.paths
		b.mu.RUnlock()
		return paths, nil
	}
	b.mu.RUnlock()

	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	var paths []string
	pager := b.client.NewListBlobsFlatPager(b.containerName, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, &model.BackendFaultError{Backend: b.Name(), Path: prefix, Err: err}
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			if strings.HasSuffix(*item.Name, ".parquet") {
				paths = append(paths, *item.Name)
			}
		}
	}

	b.mu.Lock()
	b.listings[prefix] = listingEntry{paths: paths, at: time.Now()}
	b.mu.Unlock()
	log.Printf("[azureblob] listed %d blobs under prefix %q", len(paths), prefix)
	return paths, nil
}

// Exists reports whether path resolves to a blob in the container.
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	if err := b.wait(ctx); err != nil {
		return false, err
	}
	_, err := b.client.ServiceClient().NewContainerClient(b.containerName).NewBlobClient(path).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, &model.BackendFaultError{Backend: b.Name(), Path: path, Err: err}
	}
	return true, nil
}

// Stat returns blob metadata, or (FileInfo{}, false, nil) if absent.
func (b *Backend) Stat(ctx context.Context, path string) (storage.FileInfo, bool, error) {
	if err := b.wait(ctx); err != nil {
		return storage.FileInfo{}, false, err
	}
	props, err := b.client.ServiceClient().NewContainerClient(b.containerName).NewBlobClient(path).GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return storage.FileInfo{}, false, nil
		}
		return storage.FileInfo{}, false, &model.BackendFaultError{Backend: b.Name(), Path: path, Err: err}
	}
	var size int64
	if props.ContentLength != nil {
		size = *props.ContentLength
	}
	var modified time.Time
	if props.LastModified != nil {
		modified = *props.LastModified
	}
	return storage.FileInfo{Path: path, SizeBytes: size, ModifiedTime: modified}, true, nil
}

// Read downloads and decodes the blob at path, returning an empty batch
// (no error) when the blob does not exist. A remote backend does not
// speculatively verify existence before a read is attempted (unlike the
// local backend), so this is the one path where "missing" is discovered.
func (b *Backend) Read(ctx context.Context, path string) (*model.Batch, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := b.client.DownloadStream(ctx, b.containerName, path, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return model.NewBatch(), nil
		}
		return nil, &model.BackendFaultError{Backend: b.Name(), Path: path, Err: err}
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, &model.BackendFaultError{Backend: b.Name(), Path: path, Err: err}
	}

	batch, err := b.codec.Decode(buf.Bytes())
	if err != nil {
		log.Printf("[azureblob] corrupt blob %s: %v", path, err)
		return model.NewBatch(), nil
	}
	return batch, nil
}

// Write uploads batch to path, overwriting any existing blob. Used by the
// rebuilder when remote aggregated/daily partitions are recomputed.
func (b *Backend) Write(ctx context.Context, path string, batch *model.Batch) error {
	if err := b.wait(ctx); err != nil {
		return err
	}
	data, err := b.codec.Encode(batch)
	if err != nil {
		return &model.BackendFaultError{Backend: b.Name(), Path: path, Err: err}
	}
	if _, err := b.client.UploadBuffer(ctx, b.containerName, path, data, nil); err != nil {
		return &model.BackendFaultError{Backend: b.Name(), Path: path, Err: err}
	}
	b.mu.Lock()
	b.listings = make(map[string]listingEntry)
	b.mu.Unlock()
	return nil
}

// Health checks container reachability by fetching its properties.
func (b *Backend) Health(ctx context.Context) storage.HealthStatus {
	_, err := b.client.ServiceClient().NewContainerClient(b.containerName).GetProperties(ctx, nil)
	if err != nil {
		return storage.HealthStatus{Backend: b.Name(), Healthy: false, Detail: err.Error(), CheckedAt: time.Now()}
	}
	return storage.HealthStatus{Backend: b.Name(), Healthy: true, CheckedAt: time.Now()}
}
