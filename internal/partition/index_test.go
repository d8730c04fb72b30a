package partition

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"sensorquery/internal/model"
)

type fakeLister struct {
	calls int32
	paths []string
}

func (f *fakeLister) List(ctx context.Context, prefix string) ([]string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.paths, nil
}

type fakeVerifier struct {
	missing map[string]bool
}

func (f *fakeVerifier) Exists(ctx context.Context, path string) (bool, error) {
	return !f.missing[path], nil
}

func TestIndexCandidatesDiscoversAssets(t *testing.T) {
	t.Parallel()
	lister := &fakeLister{paths: []string{
		"turbine-1/2026/03/05/14/vibration.parquet",
		"turbine-2/2026/03/05/14/vibration.parquet",
	}}
	ix := New(lister, time.Minute, nil)

	start := time.Date(2026, time.March, 5, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	paths, err := ix.Candidates(context.Background(), []string{"vibration"}, nil, start, end, model.TierRaw)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 candidate paths, got %d: %v", len(paths), paths)
	}
}

func TestIndexCandidatesRespectsExplicitAssets(t *testing.T) {
	t.Parallel()
	lister := &fakeLister{}
	ix := New(lister, time.Minute, nil)

	start := time.Date(2026, time.March, 5, 14, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	paths, err := ix.Candidates(context.Background(), []string{"vibration", "temperature"}, []string{"turbine-9"}, start, end, model.TierRaw)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if lister.calls != 0 {
		t.Fatalf("discovery should be skipped when assets are given explicitly, got %d List calls", lister.calls)
	}
	if len(paths) != 4 {
		t.Fatalf("expected 2 hours x 2 sensors = 4 paths, got %d: %v", len(paths), paths)
	}
}

func TestIndexCandidatesSkipsMissingLocalFiles(t *testing.T) {
	t.Parallel()
	lister := &fakeLister{}
	verifier := &fakeVerifier{missing: map[string]bool{
		"turbine-9/2026/03/05/15/vibration.parquet": true,
	}}
	ix := New(lister, time.Minute, verifier)

	start := time.Date(2026, time.March, 5, 14, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	paths, err := ix.Candidates(context.Background(), []string{"vibration"}, []string{"turbine-9"}, start, end, model.TierRaw)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected missing hour to be skipped, got %v", paths)
	}
}

func TestIndexDiscoverAssetsSkipsReservedTierPrefixesForRaw(t *testing.T) {
	t.Parallel()
	lister := &fakeLister{paths: []string{
		"turbine-1/2026/03/05/14/vibration.parquet",
		"aggregated/turbine-1/2026/03/05/temperature.parquet",
		"daily/turbine-1/2026/03/temperature.parquet",
	}}
	ix := New(lister, time.Minute, nil)

	assets, err := ix.DiscoverAssets(context.Background(), model.TierRaw)
	if err != nil {
		t.Fatalf("DiscoverAssets: %v", err)
	}
	if len(assets) != 1 || assets[0] != "turbine-1" {
		t.Fatalf("expected only turbine-1 discovered for the raw tier, got %v", assets)
	}
}

func TestCachedListerReusesWithinTTL(t *testing.T) {
	t.Parallel()
	lister := &fakeLister{paths: []string{"turbine-1/2026/03/05/14/vibration.parquet"}}
	cl := newCachedLister(lister, time.Hour)

	if _, err := cl.List(context.Background(), ""); err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, err := cl.List(context.Background(), ""); err != nil {
		t.Fatalf("List: %v", err)
	}
	if lister.calls != 1 {
		t.Fatalf("expected a single underlying List call within TTL, got %d", lister.calls)
	}

	cl.clear()
	if _, err := cl.List(context.Background(), ""); err != nil {
		t.Fatalf("List: %v", err)
	}
	if lister.calls != 2 {
		t.Fatalf("expected clear() to force a fresh List call, got %d", lister.calls)
	}
}
