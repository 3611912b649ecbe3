package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulseapm/alert-engine/pkg/models"
)

// resultLimit caps every evaluation query
const resultLimit = 1000

// MetricResolver maps a metric name to its aggregation descriptor. Metric
// names it does not know are dropped from the select list.
type MetricResolver func(metric string) (SelectField, bool)

// Builder turns an alert and its scopes into an abstract telemetry query
type Builder struct {
	resolve MetricResolver
	now     func() time.Time
}

// NewBuilder creates a query builder backed by the given metric resolver
func NewBuilder(resolver MetricResolver) *Builder {
	return &Builder{resolve: resolver, now: time.Now}
}

// WithClock overrides the time source, used by tests
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// scopeField returns the column identifying a scope for the given kind
func scopeField(kind models.ScopeKind) string {
	switch kind {
	case models.ScopeKindInteraction:
		return "span_name"
	case models.ScopeKindScreen:
		return "attributes['screen.name']"
	case models.ScopeKindNetworkAPI:
		return "attributes['http.url']"
	case models.ScopeKindAppVitals:
		return "session_id"
	}
	return ""
}

func dataTypeFor(kind models.ScopeKind) DataType {
	if kind == models.ScopeKindAppVitals {
		return DataTypeMetrics
	}
	return DataTypeTraces
}

// eventTypeFilter narrows a request to the event type matching the scope
// kind. APP_VITALS rows are one-per-snapshot and carry no event type.
func eventTypeFilter(kind models.ScopeKind) (Filter, bool) {
	switch kind {
	case models.ScopeKindInteraction:
		return Filter{Field: "span_kind", Operator: FilterEQ, Values: []string{"INTERACTION"}}, true
	case models.ScopeKindScreen:
		return Filter{Field: "event_type", Operator: FilterEQ, Values: []string{"screen_load"}}, true
	case models.ScopeKindNetworkAPI:
		return Filter{Field: "span_name", Operator: FilterLIKE, Values: []string{"http%"}}, true
	}
	return Filter{}, false
}

// Build constructs the telemetry query for one evaluation cycle. The time
// range is [now - evaluationPeriod, now] in UTC and the bucket size equals
// the evaluation period. For APP_VITALS no scope column, time bucket, scope
// filter or grouping is added: vitals rows are snapshots, not a time series.
func (b *Builder) Build(alert *models.Alert, scopes []*models.Scope) (*Request, error) {
	if alert == nil {
		return nil, fmt.Errorf("%w: alert is required", models.ErrValidation)
	}
	if !alert.ScopeKind.IsValid() {
		return nil, fmt.Errorf("%w: unknown scope kind %q", models.ErrValidation, alert.ScopeKind)
	}

	end := b.now().UTC()
	start := end.Add(-time.Duration(alert.EvaluationPeriod) * time.Minute)

	req := &Request{
		DataType: dataTypeFor(alert.ScopeKind),
		TimeRange: TimeRange{
			Start: start.Format(time.RFC3339),
			End:   end.Format(time.RFC3339),
		},
		Limit: resultLimit,
	}

	if alert.ScopeKind != models.ScopeKindAppVitals {
		req.Select = append(req.Select,
			SelectField{Function: FuncTimeBucket, Params: []string{strconv.Itoa(alert.EvaluationPeriod)}, Alias: TimeBucketAlias},
			SelectField{Function: FuncColumn, Params: []string{scopeField(alert.ScopeKind)}, Alias: ScopeNameAlias},
		)

		names := make([]string, 0, len(scopes))
		for _, scope := range scopes {
			names = append(names, scope.Name)
		}
		req.Filters = append(req.Filters, Filter{
			Field:    scopeField(alert.ScopeKind),
			Operator: FilterIN,
			Values:   names,
		})
		if f, ok := eventTypeFilter(alert.ScopeKind); ok {
			req.Filters = append(req.Filters, f)
		}

		req.GroupBy = []string{TimeBucketAlias, ScopeNameAlias}
		req.OrderBy = []OrderBy{{Field: TimeBucketAlias, Direction: "DESC"}}
	}

	for _, metric := range distinctMetrics(scopes) {
		field, ok := b.resolve(metric)
		if !ok {
			logrus.Debugf("Dropping unmapped metric %q from query for alert %s", metric, alert.ID)
			continue
		}
		req.Select = append(req.Select, field)
	}

	if pred, ok := renderDimensionFilter(alert.DimensionFilter); ok {
		req.Filters = append(req.Filters, Filter{Operator: FilterAdditional, Values: []string{pred}})
	}

	return req, nil
}

// distinctMetrics unions the metric names across all scopes' conditions,
// preserving first-seen order.
func distinctMetrics(scopes []*models.Scope) []string {
	seen := make(map[string]struct{})
	var metrics []string
	for _, scope := range scopes {
		for _, metric := range scope.Metrics() {
			if _, ok := seen[metric]; ok {
				continue
			}
			seen[metric] = struct{}{}
			metrics = append(metrics, metric)
		}
	}
	return metrics
}

// renderDimensionFilter turns the alert's dimension filter into a predicate.
// Text that already looks like a predicate passes through verbatim; a flat or
// one-level-nested key-value object becomes an AND-joined equality list in
// parentheses. Empty or unparseable input yields no filter, never an error.
func renderDimensionFilter(f models.DimensionFilter) (string, bool) {
	if f.IsZero() {
		return "", false
	}
	if f.IsPredicate() {
		return strings.TrimSpace(f.Raw), true
	}
	pairs, ok := f.KeyValues()
	if !ok {
		logrus.Warnf("Ignoring unparseable dimension filter: %q", f.Raw)
		return "", false
	}
	clauses := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		clauses = append(clauses, fmt.Sprintf("%s = '%s'", kv.Key, strings.ReplaceAll(kv.Value, "'", "''")))
	}
	return "(" + strings.Join(clauses, " AND ") + ")", true
}
