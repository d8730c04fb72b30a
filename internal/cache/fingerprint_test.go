package cache

import (
	"testing"
	"time"

	"sensorquery/internal/model"
)

func TestFingerprintIgnoresSensorOrder(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	a := &model.Query{Sensors: []string{"vibration", "temperature"}, Start: start, End: end, Aggregation: model.AggAvg}
	b := &model.Query{Sensors: []string{"temperature", "vibration"}, Start: start, End: end, Aggregation: model.AggAvg}

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("expected sensor order not to affect the fingerprint")
	}
}

func TestFingerprintDiffersOnTimeRange(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)

	a := &model.Query{Sensors: []string{"vibration"}, Start: start, End: start.Add(time.Hour)}
	b := &model.Query{Sensors: []string{"vibration"}, Start: start, End: start.Add(2 * time.Hour)}

	if Fingerprint(a) == Fingerprint(b) {
		t.Fatal("expected different time ranges to produce different fingerprints")
	}
}

func TestFingerprintStableAcrossCalls(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	q := &model.Query{Sensors: []string{"vibration"}, Assets: []string{"turbine-1"}, Start: start, End: start.Add(time.Hour), IntervalMS: 1000, Aggregation: model.AggAvg, MaxDatapoints: 1000}

	if Fingerprint(q) != Fingerprint(q) {
		t.Fatal("expected fingerprint to be deterministic")
	}
}
