// Command rebuild recomputes the aggregated and daily tiers from raw data,
// modeled on the project's other offline cmd/tools backfill utilities.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"sensorquery/internal/app"
	"sensorquery/internal/config"
)

func main() {
	var (
		configPath string
		sensors    string
		assets     string
		startStr   string
		endStr     string
		validate   bool
	)

	flag.StringVar(&configPath, "config", "", "path to a YAML config file (optional, defaults otherwise)")
	flag.StringVar(&sensors, "sensors", "", "comma-separated sensor names (empty discovers all)")
	flag.StringVar(&assets, "assets", "", "comma-separated asset ids (empty discovers all)")
	flag.StringVar(&startStr, "start", "", "RFC3339 start time (empty resolves from available data)")
	flag.StringVar(&endStr, "end", "", "RFC3339 end time (empty resolves from available data)")
	flag.BoolVar(&validate, "validate", false, "run coverage validation instead of rebuilding")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	application, err := app.Build(cfg)
	if err != nil {
		log.Fatalf("build app: %v", err)
	}
	if application.Rebuilder == nil {
		log.Fatal("no writable backend configured: storage_mode must enable local or remote storage")
	}

	sensorList := splitCSV(sensors)
	assetList := splitCSV(assets)
	ctx := context.Background()

	if validate {
		report, err := application.Rebuilder.ValidateAggregatedData(ctx, sensorList, assetList)
		if err != nil {
			log.Fatalf("[rebuild] validation failed: %v", err)
		}
		emit(report)
		if !report.OverallValid {
			os.Exit(1)
		}
		return
	}

	var start, end time.Time
	if startStr != "" {
		start, err = time.Parse(time.RFC3339, startStr)
		if err != nil {
			log.Fatalf("invalid -start: %v", err)
		}
	}
	if endStr != "" {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			log.Fatalf("invalid -end: %v", err)
		}
	}

	started := time.Now()
	report, err := application.Rebuilder.Rebuild(ctx, sensorList, assetList, start, end)
	if err != nil {
		log.Fatalf("[rebuild] failed: %v", err)
	}
	log.Printf("[rebuild] done in %s", time.Since(started).Truncate(time.Second))
	emit(report)
	if !report.Success() {
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func emit(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encode report: %v", err)
	}
}
