package evaluation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseapm/alert-engine/pkg/models"
	"github.com/pulseapm/alert-engine/pkg/query"
)

func screenAlert(expression string) *models.Alert {
	return &models.Alert{
		ID:                  "alert-1",
		Name:                "checkout errors",
		ScopeKind:           models.ScopeKindScreen,
		ConditionExpression: expression,
		EvaluationPeriod:    15,
	}
}

func scopeWith(name string, conditions ...models.ConditionSpec) *models.Scope {
	return &models.Scope{
		ID:         "scope-" + name,
		AlertID:    "alert-1",
		Name:       name,
		Conditions: conditions,
		State:      models.StateNormal,
	}
}

func cond(alias, metric string, op models.MetricOperator, threshold string) models.ConditionSpec {
	return models.ConditionSpec{
		Alias:     alias,
		Metric:    metric,
		Operator:  op,
		Threshold: json.Number(threshold),
	}
}

func TestEvaluateThresholdBreach(t *testing.T) {
	alert := screenAlert("c1")
	scope := scopeWith("CheckoutScreen", cond("c1", "ERROR_RATE", models.OperatorGT, "0.05"))

	result := &query.Result{
		Fields: []string{"time_bucket", "scope_name", "ERROR_RATE"},
		Rows: [][]string{
			{"2026-03-01T10:00:00Z", "CheckoutScreen", "0.10"},
		},
	}

	outcomes := NewMetricEvaluator().Evaluate(alert, []*models.Scope{scope}, result)
	require.Len(t, outcomes, 1)

	assert.Equal(t, models.StateFiring, outcomes[0].State)
	assert.True(t, outcomes[0].Firing)
	require.NotNil(t, outcomes[0].Result["ERROR_RATE"])
	assert.InDelta(t, 0.10, *outcomes[0].Result["ERROR_RATE"], 1e-9)
}

func TestEvaluateBelowThreshold(t *testing.T) {
	alert := screenAlert("c1")
	scope := scopeWith("CheckoutScreen", cond("c1", "ERROR_RATE", models.OperatorGT, "0.05"))

	result := &query.Result{
		Fields: []string{"time_bucket", "scope_name", "ERROR_RATE"},
		Rows: [][]string{
			{"2026-03-01T10:00:00Z", "CheckoutScreen", "0.01"},
		},
	}

	outcomes := NewMetricEvaluator().Evaluate(alert, []*models.Scope{scope}, result)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StateNormal, outcomes[0].State)
	assert.False(t, outcomes[0].Firing)
}

func TestEvaluateEmptyResultYieldsNoData(t *testing.T) {
	alert := screenAlert("c1 && c2")
	scope := scopeWith("CheckoutScreen",
		cond("c1", "ERROR_RATE", models.OperatorGT, "0.05"),
		cond("c2", "P95_LATENCY", models.OperatorGT, "800"),
	)

	for _, result := range []*query.Result{nil, {}, {Fields: nil, Rows: nil}} {
		outcomes := NewMetricEvaluator().Evaluate(alert, []*models.Scope{scope}, result)
		require.Len(t, outcomes, 1)
		assert.Equal(t, models.StateNoData, outcomes[0].State)
		assert.False(t, outcomes[0].Firing)
		// readings exist per metric but carry no value
		require.Contains(t, outcomes[0].Result, "ERROR_RATE")
		require.Contains(t, outcomes[0].Result, "P95_LATENCY")
		assert.Nil(t, outcomes[0].Result["ERROR_RATE"])
		assert.Nil(t, outcomes[0].Result["P95_LATENCY"])
	}
}

func TestEvaluateScopeWithoutMatchingRow(t *testing.T) {
	alert := screenAlert("c1")
	matched := scopeWith("CheckoutScreen", cond("c1", "ERROR_RATE", models.OperatorGT, "0.05"))
	unmatched := scopeWith("LoginScreen", cond("c1", "ERROR_RATE", models.OperatorGT, "0.05"))

	result := &query.Result{
		Fields: []string{"time_bucket", "scope_name", "ERROR_RATE"},
		Rows: [][]string{
			{"2026-03-01T10:00:00Z", "CheckoutScreen", "0.20"},
		},
	}

	outcomes := NewMetricEvaluator().Evaluate(alert, []*models.Scope{matched, unmatched}, result)
	require.Len(t, outcomes, 2)

	assert.Equal(t, models.StateFiring, outcomes[0].State)
	// scope with no row resolves nothing and degrades to NO_DATA
	assert.Equal(t, models.StateNoData, outcomes[1].State)
	assert.Nil(t, outcomes[1].Result["ERROR_RATE"])
}

func TestEvaluateFirstMatchingRowWins(t *testing.T) {
	alert := screenAlert("c1")
	scope := scopeWith("CheckoutScreen", cond("c1", "ERROR_RATE", models.OperatorGT, "0.05"))

	// rows are ordered newest bucket first; the first match is the one read
	result := &query.Result{
		Fields: []string{"time_bucket", "scope_name", "ERROR_RATE"},
		Rows: [][]string{
			{"2026-03-01T10:05:00Z", "CheckoutScreen", "0.09"},
			{"2026-03-01T10:00:00Z", "CheckoutScreen", "0.01"},
		},
	}

	outcomes := NewMetricEvaluator().Evaluate(alert, []*models.Scope{scope}, result)
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Result["ERROR_RATE"])
	assert.InDelta(t, 0.09, *outcomes[0].Result["ERROR_RATE"], 1e-9)
	assert.Equal(t, models.StateFiring, outcomes[0].State)
}

func TestEvaluatePartialConditionDegradation(t *testing.T) {
	// one metric column missing: its alias stays false, the rest still evaluates
	alert := screenAlert("c1 || c2")
	scope := scopeWith("CheckoutScreen",
		cond("c1", "ERROR_RATE", models.OperatorGT, "0.05"),
		cond("c2", "P95_LATENCY", models.OperatorGT, "800"),
	)

	result := &query.Result{
		Fields: []string{"time_bucket", "scope_name", "ERROR_RATE"},
		Rows: [][]string{
			{"2026-03-01T10:00:00Z", "CheckoutScreen", "0.10"},
		},
	}

	outcomes := NewMetricEvaluator().Evaluate(alert, []*models.Scope{scope}, result)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StateFiring, outcomes[0].State)
	assert.Nil(t, outcomes[0].Result["P95_LATENCY"])
	require.NotNil(t, outcomes[0].Result["ERROR_RATE"])
}

func TestEvaluateBadThresholdDegradesCondition(t *testing.T) {
	alert := screenAlert("c1 || c2")
	scope := scopeWith("CheckoutScreen",
		cond("c1", "ERROR_RATE", models.OperatorGT, "not-a-number"),
		cond("c2", "P95_LATENCY", models.OperatorGT, "800"),
	)

	result := &query.Result{
		Fields: []string{"time_bucket", "scope_name", "ERROR_RATE", "P95_LATENCY"},
		Rows: [][]string{
			{"2026-03-01T10:00:00Z", "CheckoutScreen", "0.99", "950"},
		},
	}

	outcomes := NewMetricEvaluator().Evaluate(alert, []*models.Scope{scope}, result)
	require.Len(t, outcomes, 1)
	// c1 degrades to false, c2 resolves and fires
	assert.Equal(t, models.StateFiring, outcomes[0].State)
}

func TestEvaluateUnparseableCellDegradesToNoData(t *testing.T) {
	alert := screenAlert("c1")
	scope := scopeWith("CheckoutScreen", cond("c1", "ERROR_RATE", models.OperatorGT, "0.05"))

	result := &query.Result{
		Fields: []string{"time_bucket", "scope_name", "ERROR_RATE"},
		Rows: [][]string{
			{"2026-03-01T10:00:00Z", "CheckoutScreen", "NaN?"},
		},
	}

	outcomes := NewMetricEvaluator().Evaluate(alert, []*models.Scope{scope}, result)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StateNoData, outcomes[0].State)
}

func TestEvaluateAppVitalsReadsFirstRow(t *testing.T) {
	alert := &models.Alert{
		ID:                  "alert-2",
		ScopeKind:           models.ScopeKindAppVitals,
		ConditionExpression: "c1",
	}
	scope := scopeWith("session-group", cond("c1", "CRASH_RATE", models.OperatorGTE, "0.02"))

	// app vitals results carry no scope column
	result := &query.Result{
		Fields: []string{"CRASH_RATE"},
		Rows:   [][]string{{"0.03"}},
	}

	outcomes := NewMetricEvaluator().Evaluate(alert, []*models.Scope{scope}, result)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StateFiring, outcomes[0].State)
	require.NotNil(t, outcomes[0].Result["CRASH_RATE"])
	assert.InDelta(t, 0.03, *outcomes[0].Result["CRASH_RATE"], 1e-9)
}

func TestEvaluateInvalidExpressionDoesNotFire(t *testing.T) {
	alert := screenAlert("c1 &&")
	scope := scopeWith("CheckoutScreen", cond("c1", "ERROR_RATE", models.OperatorGT, "0.05"))

	result := &query.Result{
		Fields: []string{"time_bucket", "scope_name", "ERROR_RATE"},
		Rows: [][]string{
			{"2026-03-01T10:00:00Z", "CheckoutScreen", "0.10"},
		},
	}

	outcomes := NewMetricEvaluator().Evaluate(alert, []*models.Scope{scope}, result)
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StateNormal, outcomes[0].State)
	assert.False(t, outcomes[0].Firing)
}
