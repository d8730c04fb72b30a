package query

import (
	"context"
	"testing"
	"time"

	"sensorquery/internal/cache"
	"sensorquery/internal/config"
	"sensorquery/internal/model"
	"sensorquery/internal/partition"
	"sensorquery/internal/stats"
)

func TestRawEngineTruncatesOversizedWindow(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.StorageMode = config.StorageModeLocal
	cfg.Query.MaxAbsoluteDatapoints = 5

	exec := NewExecutor(cfg, newFakeBackend("local"), nil, cache.New(1<<20, 100, time.Hour), stats.New())
	raw := NewRawEngine(exec)

	start := time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC)
	end := start.Add(100 * time.Second) // naive estimate: 100 points > 5

	result, err := raw.Query(context.Background(), []string{"vibration"}, []string{"turbine-1"}, start, end)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !result.Truncated {
		t.Fatal("expected the oversized raw window to be truncated")
	}
	want := start.Add(5 * time.Second)
	if !result.ActualEndTime.Equal(want) {
		t.Fatalf("expected actual_end_time=%v, got %v", want, result.ActualEndTime)
	}
	if result.ActualEndTime.Before(start) || result.ActualEndTime.After(end) {
		t.Fatal("actual_end_time must stay within [start, end]")
	}
}

func TestRawEngineLeavesSmallWindowUntouched(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.StorageMode = config.StorageModeLocal
	cfg.Query.MaxAbsoluteDatapoints = 100000

	exec := NewExecutor(cfg, newFakeBackend("local"), nil, cache.New(1<<20, 100, time.Hour), stats.New())
	raw := NewRawEngine(exec)

	start := time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Second)

	result, err := raw.Query(context.Background(), []string{"vibration"}, []string{"turbine-1"}, start, end)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Truncated {
		t.Fatal("did not expect truncation for a small window")
	}
}

func TestAggregatedEngineExtractsMeanCompanionColumn(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.StorageMode = config.StorageModeLocal

	base := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	local := newFakeBackend("local")

	bd := model.NewBuilder()
	bd.AddRow(base, map[string]string{"sensor_name": "temperature", "asset_id": "turbine-1"},
		map[string]float64{"temperature_mean": 10, "temperature_min": 5, "temperature_max": 15})
	bd.AddRow(base.Add(time.Minute), map[string]string{"sensor_name": "temperature", "asset_id": "turbine-1"},
		map[string]float64{"temperature_mean": 20, "temperature_min": 15, "temperature_max": 25})
	local.put(partition.BuildPath(model.TierAggregated, "turbine-1", "temperature", base), bd.Build())

	exec := NewExecutor(cfg, local, nil, cache.New(1<<20, 100, time.Hour), stats.New())
	agg := NewAggregatedEngine(exec)

	start := base
	end := base.Add(10 * time.Minute)
	result, err := agg.Query(context.Background(), []string{"temperature"}, []string{"turbine-1"}, start, end, 30000, 100, "mean")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.TierUsed != model.TierAggregated {
		t.Fatalf("expected the pre-computed aggregated tier to be used, got %v", result.TierUsed)
	}
	if result.Data.Rows != 2 {
		t.Fatalf("expected 2 rows, got %d", result.Data.Rows)
	}
	v, ok := result.Data.NumericAt("temperature", 0)
	if !ok || v != 10 {
		t.Fatalf("expected temperature to be the _mean companion value 10, got %v (ok=%v)", v, ok)
	}
	if _, ok := result.Data.Columns["temperature_min"]; ok {
		t.Fatal("did not expect the _min companion column to survive projection")
	}
}

func TestAggregatedEngineFallsBackWhenNoCompanionColumns(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.StorageMode = config.StorageModeLocal

	base := time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC)
	local := newFakeBackend("local")
	local.put(partition.BuildPath(model.TierRaw, "turbine-1", "vibration", base),
		buildBatch(base, 5, "vibration", "turbine-1", func(i int) float64 { return float64(i) }))

	exec := NewExecutor(cfg, local, nil, cache.New(1<<20, 100, time.Hour), stats.New())
	agg := NewAggregatedEngine(exec)

	result, err := agg.Query(context.Background(), []string{"vibration"}, []string{"turbine-1"}, base, base.Add(5*time.Second), 0, 0, "mean")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Data.Rows != 5 {
		t.Fatalf("expected the general executor fallback to find the raw rows, got %d", result.Data.Rows)
	}
}

func TestRecommendedIntervalMatchesLadderExample(t *testing.T) {
	t.Parallel()
	// 86,400 raw points over 24h with a 2,000-point budget: the same
	// worked example the aggregator's own ladder-selection test uses.
	got := recommendedInterval(24, 2000)
	if got != 60000 {
		t.Fatalf("recommendedInterval(24h, 2000) = %d, want 60000", got)
	}
}
