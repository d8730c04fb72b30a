// Command queryctl runs one query against the sensor store and prints the
// result as JSON, using the same executor the service embeds.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"sensorquery/internal/app"
	"sensorquery/internal/config"
	"sensorquery/internal/model"
)

func main() {
	var (
		configPath string
		sensors    string
		assets     string
		startStr   string
		endStr     string
		intervalMS int64
		maxPoints  int
		method     string
	)

	flag.StringVar(&configPath, "config", "", "path to a YAML config file (optional, defaults otherwise)")
	flag.StringVar(&sensors, "sensors", "", "comma-separated sensor names (required)")
	flag.StringVar(&assets, "assets", "", "comma-separated asset ids (optional, all assets if empty)")
	flag.StringVar(&startStr, "start", "", "RFC3339 start time (required)")
	flag.StringVar(&endStr, "end", "", "RFC3339 end time (required)")
	flag.Int64Var(&intervalMS, "interval-ms", 0, "bucket interval in milliseconds (0 derives it)")
	flag.IntVar(&maxPoints, "max-datapoints", 0, "point budget (0 uses the configured default)")
	flag.StringVar(&method, "method", "avg", "reduction method: avg, min, max, first, last, count, sum")
	flag.Parse()

	if sensors == "" || startStr == "" || endStr == "" {
		fmt.Fprintln(os.Stderr, "usage: queryctl -sensors=<a,b> -start=<RFC3339> -end=<RFC3339> [-assets=<a,b>] [-interval-ms=N] [-max-datapoints=N] [-method=avg]")
		os.Exit(2)
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		log.Fatalf("invalid -end: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	application, err := app.Build(cfg)
	if err != nil {
		log.Fatalf("build app: %v", err)
	}

	q := &model.Query{
		Sensors:       splitCSV(sensors),
		Assets:        splitCSV(assets),
		Start:         start,
		End:           end,
		IntervalMS:    intervalMS,
		MaxDatapoints: maxPoints,
		Aggregation:   model.ParseAggregation(method),
	}

	result, err := application.Executor.Query(context.Background(), q)
	if err != nil {
		log.Fatalf("query failed: %v", err)
	}

	if err := json.NewEncoder(os.Stdout).Encode(resultToJSON(result)); err != nil {
		log.Fatalf("encode result: %v", err)
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

// resultToJSON flattens a Result's batch into a JSON-friendly shape; the
// Batch's internal column layout is an execution detail, not a wire format.
func resultToJSON(result model.Result) map[string]any {
	rows := make([]map[string]any, result.Data.Rows)
	timestamps := result.Data.Timestamps()
	for i := range rows {
		row := map[string]any{}
		if i < len(timestamps) {
			row["timestamp"] = timestamps[i].Format(time.RFC3339Nano)
		}
		for _, name := range result.Data.ColumnNames() {
			if name == "timestamp" {
				continue
			}
			if v, ok := result.Data.StringAt(name, i); ok {
				row[name] = v
				continue
			}
			if v, ok := result.Data.NumericAt(name, i); ok {
				row[name] = v
			}
		}
		rows[i] = row
	}

	return map[string]any{
		"tier_used":           result.TierUsed.String(),
		"cache_hit":           result.CacheHit,
		"truncated":           result.Truncated,
		"actual_end_time":     result.ActualEndTime.Format(time.RFC3339Nano),
		"original_datapoints": result.OriginalDatapoints,
		"execution_time_ms":   result.ExecutionTimeMS,
		"rows":                rows,
	}
}
