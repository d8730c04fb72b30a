package rebuild

import (
	"context"
	"strings"
	"sync"
	"time"

	"sensorquery/internal/model"
	"sensorquery/internal/storage"
)

// fakeTarget is an in-memory Target (storage.Backend + storage.Writer) used
// across this package's tests in place of localfs/azureblob.
type fakeTarget struct {
	mu    sync.Mutex
	name  string
	files map[string]*model.Batch
}

func newFakeTarget(name string) *fakeTarget {
	return &fakeTarget{name: name, files: make(map[string]*model.Batch)}
}

func (f *fakeTarget) put(path string, b *model.Batch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = b
}

func (f *fakeTarget) get(path string) (*model.Batch, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[path]
	return b, ok
}

func (f *fakeTarget) Name() string { return f.name }

func (f *fakeTarget) List(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for p := range f.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeTarget) Exists(ctx context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok, nil
}

func (f *fakeTarget) Stat(ctx context.Context, path string) (storage.FileInfo, bool, error) {
	b, ok := f.get(path)
	if !ok {
		return storage.FileInfo{}, false, nil
	}
	return storage.FileInfo{Path: path, SizeBytes: int64(b.Rows), ModifiedTime: time.Now()}, true, nil
}

func (f *fakeTarget) Read(ctx context.Context, path string) (*model.Batch, error) {
	b, ok := f.get(path)
	if !ok {
		return model.NewBatch(), nil
	}
	return b, nil
}

func (f *fakeTarget) Write(ctx context.Context, path string, b *model.Batch) error {
	f.put(path, b)
	return nil
}

func (f *fakeTarget) Health(ctx context.Context) storage.HealthStatus {
	return storage.HealthStatus{Backend: f.name, Healthy: true, CheckedAt: time.Now()}
}

// buildRawBatch constructs rows of one sensor/asset's readings at 1-second
// spacing starting at base.
func buildRawBatch(base time.Time, rows int, sensor, asset string, valueAt func(i int) float64) *model.Batch {
	bd := model.NewBuilder()
	for i := 0; i < rows; i++ {
		bd.AddRow(
			base.Add(time.Duration(i)*time.Second),
			map[string]string{"sensor_name": sensor, "asset_id": asset},
			map[string]float64{"temperature": valueAt(i)},
		)
	}
	return bd.Build()
}
