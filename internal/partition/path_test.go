package partition

import (
	"testing"
	"time"

	"sensorquery/internal/model"
)

func TestBuildPathGrammar(t *testing.T) {
	t.Parallel()
	when := time.Date(2026, time.March, 5, 14, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		tier model.Tier
		want string
	}{
		{"raw", model.TierRaw, "turbine-3/2026/03/05/14/vibration.parquet"},
		{"aggregated", model.TierAggregated, "aggregated/turbine-3/2026/03/05/vibration.parquet"},
		{"daily", model.TierDaily, "daily/turbine-3/2026/03/vibration.parquet"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := BuildPath(c.tier, "turbine-3", "vibration", when)
			if got != c.want {
				t.Fatalf("BuildPath() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestSensorFromPath(t *testing.T) {
	t.Parallel()
	got := SensorFromPath("aggregated/turbine-3/2026/03/05/vibration.parquet")
	if got != "vibration" {
		t.Fatalf("SensorFromPath() = %q, want %q", got, "vibration")
	}
}

func TestParsePathTime(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		path string
		want time.Time
	}{
		{"raw", "turbine-3/2026/03/05/14/vibration.parquet", time.Date(2026, time.March, 5, 14, 0, 0, 0, time.UTC)},
		{"aggregated", "aggregated/turbine-3/2026/03/05/vibration.parquet", time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)},
		{"daily", "daily/turbine-3/2026/03/vibration.parquet", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := ParsePathTime(c.path)
			if !ok {
				t.Fatalf("ParsePathTime(%q) reported false", c.path)
			}
			if !got.Equal(c.want) {
				t.Fatalf("ParsePathTime(%q) = %v, want %v", c.path, got, c.want)
			}
		})
	}
}

func TestTierOfPath(t *testing.T) {
	t.Parallel()
	if got := TierOfPath("aggregated/turbine-1/2026/03/05/vibration.parquet"); got != model.TierAggregated {
		t.Fatalf("expected aggregated tier, got %v", got)
	}
	if got := TierOfPath("daily/turbine-1/2026/03/vibration.parquet"); got != model.TierDaily {
		t.Fatalf("expected daily tier, got %v", got)
	}
	if got := TierOfPath("turbine-1/2026/03/05/14/vibration.parquet"); got != model.TierRaw {
		t.Fatalf("expected raw tier, got %v", got)
	}
}

func TestGranularityStepCrossesMonthBoundary(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, time.January, 31, 23, 0, 0, 0, time.UTC)
	next := granularityStep(start, model.TierRaw)
	want := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("granularityStep crossed month incorrectly: got %v, want %v", next, want)
	}
}

func TestGranularityStepCrossesYearBoundary(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC)
	next := granularityStep(start, model.TierDaily)
	want := time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("granularityStep crossed year incorrectly: got %v, want %v", next, want)
	}
}

func TestGranularityFloor(t *testing.T) {
	t.Parallel()
	when := time.Date(2026, time.March, 5, 14, 42, 17, 0, time.UTC)

	if got := granularityFloor(when, model.TierRaw); got.Minute() != 0 || got.Second() != 0 {
		t.Fatalf("raw floor did not zero sub-hour fields: %v", got)
	}
	if got := granularityFloor(when, model.TierAggregated); got.Hour() != 0 {
		t.Fatalf("aggregated floor did not zero sub-day fields: %v", got)
	}
	if got := granularityFloor(when, model.TierDaily); got.Day() != 1 {
		t.Fatalf("daily floor did not reset to first of month: %v", got)
	}
}
