package models

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// AlertState represents the current evaluated state of a scope
type AlertState string

const (
	StateNormal  AlertState = "NORMAL"
	StateFiring  AlertState = "FIRING"
	StateNoData  AlertState = "NO_DATA"
	StateErrored AlertState = "ERRORED"
	// SILENCED and QUERY_FAILED are part of the state taxonomy but are
	// written by other components, never by the evaluation pipeline.
	StateSilenced    AlertState = "SILENCED"
	StateQueryFailed AlertState = "QUERY_FAILED"
)

// ScopeKind represents the kind of sub-target an alert is scoped to
type ScopeKind string

const (
	ScopeKindInteraction ScopeKind = "INTERACTION"
	ScopeKindScreen      ScopeKind = "SCREEN"
	ScopeKindNetworkAPI  ScopeKind = "NETWORK_API"
	ScopeKindAppVitals   ScopeKind = "APP_VITALS"
)

// IsValid reports whether the scope kind is one of the known kinds
func (k ScopeKind) IsValid() bool {
	switch k {
	case ScopeKindInteraction, ScopeKindScreen, ScopeKindNetworkAPI, ScopeKindAppVitals:
		return true
	}
	return false
}

// MetricOperator represents a threshold comparison operator
type MetricOperator string

const (
	OperatorGT  MetricOperator = "GT"
	OperatorLT  MetricOperator = "LT"
	OperatorGTE MetricOperator = "GTE"
	OperatorLTE MetricOperator = "LTE"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// ConditionSpec is one threshold condition attached to a scope. The alias is
// the name the condition is referenced by inside the alert's boolean
// expression. Threshold is kept as json.Number so that numeric strings coming
// off the persistence edge degrade per condition instead of failing the scope.
type ConditionSpec struct {
	Alias     string         `json:"alias"`
	Metric    string         `json:"metric"`
	Operator  MetricOperator `json:"metric_operator"`
	Threshold json.Number    `json:"threshold"`
}

// Alert represents a user-defined alert definition. It is immutable during a
// single evaluation run.
type Alert struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	ScopeKind           ScopeKind       `json:"scopeKind"`
	DimensionFilter     DimensionFilter `json:"dimensionFilter,omitempty"`
	ConditionExpression string          `json:"conditionExpression"`
	EvaluationPeriod    int             `json:"evaluationPeriod"`   // lookback window in minutes
	EvaluationInterval  int             `json:"evaluationInterval"` // re-evaluation interval in seconds
	Severity            AlertSeverity   `json:"severity"`
	NotificationChannel string          `json:"notificationChannel,omitempty"`
	SnoozedFrom         *time.Time      `json:"snoozedFrom,omitempty"`
	SnoozedUntil        *time.Time      `json:"snoozedUntil,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// Scope is a named sub-target of an alert (one screen, interaction, URL or
// vitals group), tracked with its own state and history. Scopes are created
// with their owning alert and mutated only by the state-updater consumer.
type Scope struct {
	ID         string          `json:"id"`
	AlertID    string          `json:"alertId"`
	Name       string          `json:"name"`
	Conditions []ConditionSpec `json:"conditions"`
	State      AlertState      `json:"state"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Metrics returns the distinct metric names referenced by the scope's
// conditions, in first-seen order.
func (s *Scope) Metrics() []string {
	seen := make(map[string]struct{}, len(s.Conditions))
	metrics := make([]string, 0, len(s.Conditions))
	for _, c := range s.Conditions {
		if _, ok := seen[c.Metric]; ok {
			continue
		}
		seen[c.Metric] = struct{}{}
		metrics = append(metrics, c.Metric)
	}
	return metrics
}

// DimensionFilter narrows the telemetry an alert looks at. It is either a raw
// predicate (passed through verbatim) or a flat / one-level-nested key-value
// object rendered into equality clauses. The raw text is kept as-is; the
// interpretation happens at the query-building edge.
type DimensionFilter struct {
	Raw string `json:"raw,omitempty"`
}

// IsZero reports whether no filter was configured
func (f DimensionFilter) IsZero() bool {
	return strings.TrimSpace(f.Raw) == ""
}

// IsPredicate reports whether the raw text already looks like a predicate
// rather than a key-value object.
func (f DimensionFilter) IsPredicate() bool {
	raw := strings.TrimSpace(f.Raw)
	if raw == "" {
		return false
	}
	if strings.HasPrefix(raw, "(") {
		return true
	}
	if strings.HasPrefix(raw, "{") {
		return false
	}
	return strings.Contains(raw, "=") || strings.Contains(raw, " AND ") || strings.Contains(raw, " OR ")
}

// KeyValue is one rendered dimension-filter pair, order preserving.
type KeyValue struct {
	Key   string
	Value string
}

// KeyValues parses the raw text as a flat or one-level-nested JSON object and
// flattens it into key-value pairs sorted by key (nested keys are joined with
// a dot). The second return is false when the text is empty or unparseable;
// callers treat that as "no additional filter", never as an error.
func (f DimensionFilter) KeyValues() ([]KeyValue, bool) {
	raw := strings.TrimSpace(f.Raw)
	if raw == "" {
		return nil, false
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, false
	}
	pairs := make([]KeyValue, 0, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case map[string]interface{}:
			for nk, nv := range val {
				pairs = append(pairs, KeyValue{Key: k + "." + nk, Value: scalarString(nv)})
			}
		default:
			pairs = append(pairs, KeyValue{Key: k, Value: scalarString(val)})
		}
	}
	if len(pairs) == 0 {
		return nil, false
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return pairs, true
}

func scalarString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		b, _ := json.Marshal(val)
		return string(b)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}
