package query

import (
	"sensorquery/internal/aggregate"
	"sensorquery/internal/config"
	"sensorquery/internal/model"
)

// validateAndNormalize is step 1 of query execution: reject malformed
// queries outright, then fill in every optional field a caller omitted.
// The only error this returns is *model.InvalidArgumentError — the one
// user-visible failure surface per the error taxonomy.
func validateAndNormalize(cfg config.Config, q *model.Query) error {
	if len(q.Sensors) == 0 {
		return &model.InvalidArgumentError{Field: "sensors", Msg: "must not be empty"}
	}
	if !q.End.After(q.Start) {
		return &model.InvalidArgumentError{Field: "end", Msg: "must be after start"}
	}
	maxDuration := float64(cfg.Query.MaxQueryDurationHours)
	if q.Duration().Hours() > maxDuration {
		return &model.InvalidArgumentError{Field: "end", Msg: "query duration exceeds max_query_duration_hours"}
	}

	q.Aggregation = model.ParseAggregation(string(q.Aggregation))

	if q.MaxDatapoints <= 0 {
		q.MaxDatapoints = cfg.Query.DefaultMaxDatapoints
	}
	if q.MaxDatapoints > cfg.Query.MaxAbsoluteDatapoints {
		q.MaxDatapoints = cfg.Query.MaxAbsoluteDatapoints
	}

	if q.IntervalMS <= 0 {
		perSensor := q.MaxDatapoints / len(q.Sensors)
		q.IntervalMS = aggregate.CalculateOptimalInterval(q.MaxDatapoints+1, q.Duration().Hours(), maxInt(perSensor, 1), cfg.Query.DefaultIntervalMS)
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
