package telemetry

import (
	"github.com/pulseapm/alert-engine/pkg/query"
)

// metricAggregates is the static lookup from metric name to aggregation
// descriptor. The evaluation core depends only on the abstract request and
// result contracts; this table is the store-specific edge of that contract.
// The select alias is always the metric name itself so the evaluator can find
// its column back by name.
var metricAggregates = map[string]query.SelectField{
	"ERROR_RATE": {
		Function: query.FuncRate,
		Params:   []string{"status_code = 'ERROR'"},
		Alias:    "ERROR_RATE",
	},
	"CRASH_RATE": {
		Function: query.FuncRate,
		Params:   []string{"event_type = 'crash'"},
		Alias:    "CRASH_RATE",
	},
	"ANR_RATE": {
		Function: query.FuncRate,
		Params:   []string{"event_type = 'anr'"},
		Alias:    "ANR_RATE",
	},
	"AVG_LATENCY": {
		Function: query.FuncAverage,
		Params:   []string{"duration_ms"},
		Alias:    "AVG_LATENCY",
	},
	"P50_LATENCY": {
		Function: query.FuncQuantile,
		Params:   []string{"duration_ms", "0.50"},
		Alias:    "P50_LATENCY",
	},
	"P95_LATENCY": {
		Function: query.FuncQuantile,
		Params:   []string{"duration_ms", "0.95"},
		Alias:    "P95_LATENCY",
	},
	"P99_LATENCY": {
		Function: query.FuncQuantile,
		Params:   []string{"duration_ms", "0.99"},
		Alias:    "P99_LATENCY",
	},
	"THROUGHPUT": {
		Function: query.FuncCount,
		Alias:    "THROUGHPUT",
	},
	"COLD_LAUNCH_TIME": {
		Function: query.FuncAverage,
		Params:   []string{"cold_launch_ms"},
		Alias:    "COLD_LAUNCH_TIME",
	},
	"FROZEN_FRAME_RATE": {
		Function: query.FuncRate,
		Params:   []string{"frame_state = 'frozen'"},
		Alias:    "FROZEN_FRAME_RATE",
	},
}

// ResolveMetric is the query.MetricResolver used in production wiring
func ResolveMetric(metric string) (query.SelectField, bool) {
	field, ok := metricAggregates[metric]
	return field, ok
}
