package query

import (
	"context"
	"strings"
	"time"

	"sensorquery/internal/model"
	"sensorquery/internal/storage"
)

// fakeBackend is an in-memory storage.Backend keyed by exact partition
// path, standing in for localfs/azureblob in executor tests.
type fakeBackend struct {
	name  string
	files map[string]*model.Batch
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{name: name, files: make(map[string]*model.Batch)}
}

func (f *fakeBackend) put(path string, b *model.Batch) { f.files[path] = b }

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	for p := range f.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBackend) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := f.files[path]
	return ok, nil
}

func (f *fakeBackend) Stat(ctx context.Context, path string) (storage.FileInfo, bool, error) {
	b, ok := f.files[path]
	if !ok {
		return storage.FileInfo{}, false, nil
	}
	return storage.FileInfo{Path: path, SizeBytes: int64(b.Rows), ModifiedTime: time.Now()}, true, nil
}

func (f *fakeBackend) Read(ctx context.Context, path string) (*model.Batch, error) {
	b, ok := f.files[path]
	if !ok {
		return model.NewBatch(), nil
	}
	return b, nil
}

func (f *fakeBackend) Health(ctx context.Context) storage.HealthStatus {
	return storage.HealthStatus{Backend: f.name, Healthy: true, CheckedAt: time.Now()}
}

// buildBatch constructs a batch of one sensor/asset's readings at 1-second
// spacing starting at base.
func buildBatch(base time.Time, rows int, sensor, asset string, valueAt func(i int) float64) *model.Batch {
	bd := model.NewBuilder()
	for i := 0; i < rows; i++ {
		bd.AddRow(
			base.Add(time.Duration(i)*time.Second),
			map[string]string{"sensor_name": sensor, "asset_id": asset},
			map[string]float64{"value": valueAt(i)},
		)
	}
	return bd.Build()
}
