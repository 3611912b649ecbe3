// Package query defines the abstract telemetry query contract and builds
// query requests out of an alert and its scopes. Rendering a request into the
// store's SQL dialect happens at the telemetry edge, not here.
package query

// DataType selects which telemetry signal a request runs against
type DataType string

const (
	DataTypeTraces     DataType = "TRACES"
	DataTypeLogs       DataType = "LOGS"
	DataTypeMetrics    DataType = "METRICS"
	DataTypeExceptions DataType = "EXCEPTIONS"
)

// FilterOperator is the comparison applied by a request filter
type FilterOperator string

const (
	FilterEQ FilterOperator = "EQ"
	FilterIN FilterOperator = "IN"
	// FilterLIKE is a case-insensitive prefix-style match
	FilterLIKE FilterOperator = "LIKE"
	// FilterAdditional carries a pre-rendered predicate used verbatim
	FilterAdditional FilterOperator = "ADDITIONAL"
)

// Aggregate function names understood by the telemetry renderer
const (
	FuncAverage    = "avg"
	FuncQuantile   = "quantile"
	FuncRate       = "rate"
	FuncCount      = "count"
	FuncColumn     = "column"      // plain column selection
	FuncTimeBucket = "time_bucket" // bucketed event time, param is bucket minutes
)

// Column aliases shared between the builder and the metric evaluator
const (
	ScopeNameAlias  = "scope_name"
	TimeBucketAlias = "time_bucket"
)

// SelectField is one select-list entry: an aggregation descriptor plus the
// alias its column comes back under.
type SelectField struct {
	Function string   `json:"function"`
	Params   []string `json:"params,omitempty"`
	Alias    string   `json:"alias"`
}

// Filter restricts the rows a request considers
type Filter struct {
	Field    string         `json:"field,omitempty"`
	Operator FilterOperator `json:"operator"`
	Values   []string       `json:"values"`
}

// OrderBy orders the result rows
type OrderBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// TimeRange bounds a request in time, ISO-8601 UTC
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Request is the abstract telemetry query produced by the builder and
// consumed by the metric query executor.
type Request struct {
	DataType  DataType      `json:"dataType"`
	TimeRange TimeRange     `json:"timeRange"`
	Select    []SelectField `json:"select"`
	Filters   []Filter      `json:"filters,omitempty"`
	GroupBy   []string      `json:"groupBy,omitempty"`
	OrderBy   []OrderBy     `json:"orderBy,omitempty"`
	Limit     int           `json:"limit"`
}

// Result is the tabular output of one executed request. All cell values are
// carried as strings; the metric evaluator parses what it needs.
type Result struct {
	Fields []string   `json:"fields"`
	Rows   [][]string `json:"rows"`
}
