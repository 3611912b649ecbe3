package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeKindIsValid(t *testing.T) {
	for _, kind := range []ScopeKind{ScopeKindInteraction, ScopeKindScreen, ScopeKindNetworkAPI, ScopeKindAppVitals} {
		assert.True(t, kind.IsValid(), "kind %s", kind)
	}
	assert.False(t, ScopeKind("SESSION").IsValid())
	assert.False(t, ScopeKind("").IsValid())
}

func TestScopeMetricsDeduplicates(t *testing.T) {
	scope := &Scope{
		Conditions: []ConditionSpec{
			{Alias: "c1", Metric: "ERROR_RATE"},
			{Alias: "c2", Metric: "P95_LATENCY"},
			{Alias: "c3", Metric: "ERROR_RATE", Operator: OperatorLT},
		},
	}
	assert.Equal(t, []string{"ERROR_RATE", "P95_LATENCY"}, scope.Metrics())
}

func TestDimensionFilterIsPredicate(t *testing.T) {
	tests := []struct {
		raw       string
		predicate bool
	}{
		{"(os = 'android')", true},
		{"os = 'android'", true},
		{"a AND b", true},
		{`{"os": "android"}`, false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.predicate, DimensionFilter{Raw: tt.raw}.IsPredicate(), "raw=%q", tt.raw)
	}
}

func TestDimensionFilterKeyValues(t *testing.T) {
	pairs, ok := DimensionFilter{Raw: `{"os": "android", "app_version": "2.1.0"}`}.KeyValues()
	require.True(t, ok)
	// pairs come back sorted by key
	require.Len(t, pairs, 2)
	assert.Equal(t, KeyValue{Key: "app_version", Value: "2.1.0"}, pairs[0])
	assert.Equal(t, KeyValue{Key: "os", Value: "android"}, pairs[1])
}

func TestDimensionFilterKeyValuesNested(t *testing.T) {
	pairs, ok := DimensionFilter{Raw: `{"device": {"model": "Pixel 8", "os": "android"}}`}.KeyValues()
	require.True(t, ok)
	require.Len(t, pairs, 2)
	assert.Equal(t, "device.model", pairs[0].Key)
	assert.Equal(t, "Pixel 8", pairs[0].Value)
	assert.Equal(t, "device.os", pairs[1].Key)
}

func TestDimensionFilterKeyValuesUnparseable(t *testing.T) {
	for _, raw := range []string{"", "{broken", "{}", "[1,2]"} {
		_, ok := DimensionFilter{Raw: raw}.KeyValues()
		assert.False(t, ok, "raw=%q", raw)
	}
}

func TestConditionSpecJSONRoundTrip(t *testing.T) {
	raw := `{"alias": "c1", "metric": "ERROR_RATE", "metric_operator": "GT", "threshold": 0.05}`

	var cond ConditionSpec
	require.NoError(t, json.Unmarshal([]byte(raw), &cond))
	assert.Equal(t, "c1", cond.Alias)
	assert.Equal(t, OperatorGT, cond.Operator)

	threshold, err := cond.Threshold.Float64()
	require.NoError(t, err)
	assert.InDelta(t, 0.05, threshold, 1e-9)
}
