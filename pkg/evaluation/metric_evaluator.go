// Package evaluation turns tabular query results into per-scope states and
// holds the snooze suppression check.
package evaluation

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pulseapm/alert-engine/pkg/expr"
	"github.com/pulseapm/alert-engine/pkg/models"
	"github.com/pulseapm/alert-engine/pkg/operators"
	"github.com/pulseapm/alert-engine/pkg/query"
)

// MetricEvaluator evaluates scope conditions against a query result. It is
// partial-failure tolerant by construction: a bad threshold, missing column
// or unparseable cell degrades only that condition's alias to false and the
// rest of the scope proceeds.
type MetricEvaluator struct{}

// NewMetricEvaluator creates a metric evaluator
func NewMetricEvaluator() *MetricEvaluator {
	return &MetricEvaluator{}
}

// Evaluate produces one outcome per scope. A result with no declared fields
// means the telemetry store returned nothing: every scope yields NO_DATA with
// nil readings and no further processing happens.
func (e *MetricEvaluator) Evaluate(alert *models.Alert, scopes []*models.Scope, result *query.Result) []models.EvaluationOutcome {
	outcomes := make([]models.EvaluationOutcome, 0, len(scopes))

	if result == nil || len(result.Fields) == 0 {
		for _, scope := range scopes {
			outcomes = append(outcomes, models.EvaluationOutcome{
				ScopeID: scope.ID,
				State:   models.StateNoData,
				Firing:  false,
				Result:  nullReadings(scope),
			})
		}
		return outcomes
	}

	fieldIndex := make(map[string]int, len(result.Fields))
	for i, name := range result.Fields {
		fieldIndex[name] = i
	}
	scopeCol, hasScopeCol := fieldIndex[query.ScopeNameAlias]

	for _, scope := range scopes {
		readings := nullReadings(scope)
		vars := make(map[string]bool, len(scope.Conditions))
		resolved := 0

		for _, cond := range scope.Conditions {
			vars[cond.Alias] = false

			threshold, err := cond.Threshold.Float64()
			if err != nil {
				logrus.Warnf("Scope %s: condition %q has non-numeric threshold %q, treating as not firing",
					scope.ID, cond.Alias, cond.Threshold.String())
				continue
			}

			metricCol, ok := fieldIndex[cond.Metric]
			if !ok {
				logrus.Debugf("Scope %s: metric %q not present in query result", scope.ID, cond.Metric)
				continue
			}

			row, ok := e.rowForScope(alert, scope, result, scopeCol, hasScopeCol)
			if !ok {
				continue
			}
			if metricCol >= len(row) {
				continue
			}

			value, err := strconv.ParseFloat(strings.TrimSpace(row[metricCol]), 64)
			if err != nil {
				logrus.Warnf("Scope %s: unparseable value %q for metric %q", scope.ID, row[metricCol], cond.Metric)
				continue
			}

			reading := value
			readings[cond.Metric] = &reading
			resolved++
			vars[cond.Alias] = operators.Apply(cond.Operator, threshold, value)
		}

		outcome := models.EvaluationOutcome{ScopeID: scope.ID, Result: readings}
		if resolved == 0 {
			outcome.State = models.StateNoData
		} else {
			firing, err := expr.Evaluate(alert.ConditionExpression, vars)
			if err != nil {
				logrus.Warnf("Alert %s: condition expression %q failed to evaluate: %v",
					alert.ID, alert.ConditionExpression, err)
				firing = false
			}
			outcome.Firing = firing
			if firing {
				outcome.State = models.StateFiring
			} else {
				outcome.State = models.StateNormal
			}
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// rowForScope picks the row a scope reads its metrics from. APP_VITALS
// results are one-row-per-snapshot, so the first row wins; every other kind
// scans for the first row whose scope column equals the scope's name (rows
// are ordered newest bucket first by the builder).
func (e *MetricEvaluator) rowForScope(alert *models.Alert, scope *models.Scope, result *query.Result, scopeCol int, hasScopeCol bool) ([]string, bool) {
	if alert.ScopeKind == models.ScopeKindAppVitals {
		if len(result.Rows) == 0 {
			return nil, false
		}
		return result.Rows[0], true
	}
	if !hasScopeCol {
		return nil, false
	}
	for _, row := range result.Rows {
		if scopeCol < len(row) && row[scopeCol] == scope.Name {
			return row, true
		}
	}
	return nil, false
}

func nullReadings(scope *models.Scope) models.EvaluationResult {
	readings := make(models.EvaluationResult)
	for _, metric := range scope.Metrics() {
		readings[metric] = nil
	}
	return readings
}
