package rebuild

import (
	"context"
	"testing"
	"time"

	"sensorquery/internal/cache"
	"sensorquery/internal/config"
	"sensorquery/internal/model"
	"sensorquery/internal/partition"
	"sensorquery/internal/query"
	"sensorquery/internal/stats"
)

func newTestRebuilder(cfg config.Config, target *fakeTarget) *Rebuilder {
	exec := query.NewExecutor(cfg, target, nil, cache.New(1<<20, 100, time.Hour), stats.New())
	return New(exec, target)
}

func TestRebuildMinuteTierWritesAggregatedPartition(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.StorageMode = config.StorageModeLocal

	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	target := newFakeTarget("local")
	target.put(partition.BuildPath(model.TierRaw, "turbine-1", "temperature", base),
		buildRawBatch(base, 3600, "temperature", "turbine-1", func(i int) float64 { return float64(i) * 0.01 }))

	r := newTestRebuilder(cfg, target)
	wrote, err := r.rebuildMinuteChunk(context.Background(), "turbine-1", "temperature", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("rebuildMinuteChunk: %v", err)
	}
	if !wrote {
		t.Fatal("expected the chunk to write data")
	}

	written, ok := target.get(partition.BuildPath(model.TierAggregated, "turbine-1", "temperature", base))
	if !ok {
		t.Fatal("expected a partition to be written to the aggregated tier")
	}
	if written.Rows != 60 {
		t.Fatalf("expected 60 one-minute buckets, got %d", written.Rows)
	}
	if _, ok := written.NumericAt("temperature_mean", 0); !ok {
		t.Fatal("expected the written partition to carry temperature_mean")
	}
}

func TestRebuildMinuteTierSkipsEmptyChunk(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.StorageMode = config.StorageModeLocal
	target := newFakeTarget("local")

	r := newTestRebuilder(cfg, target)
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	wrote, err := r.rebuildMinuteChunk(context.Background(), "turbine-1", "temperature", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("rebuildMinuteChunk: %v", err)
	}
	if wrote {
		t.Fatal("expected no write for a chunk with no underlying raw data")
	}
}

func TestRebuildTierSuccessRateThreshold(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	r := newTestRebuilder(cfg, newFakeTarget("local"))

	pairs := []assetSensor{{asset: "turbine-1", sensor: "temperature"}}
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(5 * 24 * time.Hour) // 5 one-day chunks

	calls := 0
	report := r.rebuildTier(context.Background(), pairs, start, end, 24*time.Hour, func(ctx context.Context, asset, sensor string, s, e time.Time) (bool, error) {
		calls++
		return calls != 5, nil // 4/5 succeed = 80%, meets the >=80% threshold
	})
	if report.ChunksTotal != 5 {
		t.Fatalf("expected 5 chunks, got %d", report.ChunksTotal)
	}
	if report.ChunksSucceeded != 4 {
		t.Fatalf("expected 4 successful chunks, got %d", report.ChunksSucceeded)
	}
	if !report.Success {
		t.Fatal("expected 4/5 (80%) to meet the success threshold")
	}
}

func TestRebuildTierBelowThresholdFails(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	r := newTestRebuilder(cfg, newFakeTarget("local"))

	pairs := []assetSensor{{asset: "turbine-1", sensor: "temperature"}}
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(5 * 24 * time.Hour)

	calls := 0
	report := r.rebuildTier(context.Background(), pairs, start, end, 24*time.Hour, func(ctx context.Context, asset, sensor string, s, e time.Time) (bool, error) {
		calls++
		return calls > 2, nil // only 3/5 succeed = 60%
	})
	if report.Success {
		t.Fatal("expected 3/5 (60%) to fail the success threshold")
	}
}

func TestRebuildUpdatesStatus(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.StorageMode = config.StorageModeLocal

	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	target := newFakeTarget("local")
	target.put(partition.BuildPath(model.TierRaw, "turbine-1", "temperature", base),
		buildRawBatch(base, 60, "temperature", "turbine-1", func(i int) float64 { return float64(i) }))

	r := newTestRebuilder(cfg, target)
	before := r.GetRebuildStatus()
	if before.InProgress || before.LastRebuilt != nil {
		t.Fatal("expected a fresh rebuilder to report no prior activity")
	}

	if _, err := r.Rebuild(context.Background(), []string{"temperature"}, []string{"turbine-1"}, base, base.Add(time.Minute)); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	after := r.GetRebuildStatus()
	if after.InProgress {
		t.Fatal("expected rebuild to have finished")
	}
	if after.LastRebuilt == nil {
		t.Fatal("expected LastRebuilt to be set after a rebuild")
	}
}

func TestValidateAggregatedDataFlagsLowCoverage(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.StorageMode = config.StorageModeLocal

	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	target := newFakeTarget("local")
	// Ten hours of raw data span, but only two hours' partitions (the first and the last) exist.
	target.put(partition.BuildPath(model.TierRaw, "turbine-1", "temperature", base),
		buildRawBatch(base, 60, "temperature", "turbine-1", func(i int) float64 { return float64(i) }))
	target.put(partition.BuildPath(model.TierRaw, "turbine-1", "temperature", base.Add(9*time.Hour)),
		buildRawBatch(base.Add(9*time.Hour), 60, "temperature", "turbine-1", func(i int) float64 { return float64(i) }))

	r := newTestRebuilder(cfg, target)
	report, err := r.ValidateAggregatedData(context.Background(), []string{"temperature"}, []string{"turbine-1"})
	if err != nil {
		t.Fatalf("ValidateAggregatedData: %v", err)
	}
	if report.OverallValid {
		t.Fatal("expected sparse raw-tier coverage to be flagged invalid")
	}
	if len(report.Issues) == 0 {
		t.Fatal("expected at least one coverage issue to be reported")
	}
}
