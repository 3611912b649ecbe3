package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pulseapm/alert-engine/pkg/models"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		op        models.MetricOperator
		threshold float64
		value     float64
		expected  bool
	}{
		{"gt above", models.OperatorGT, 5.0, 7.5, true},
		{"gt equal", models.OperatorGT, 5.0, 5.0, false},
		{"gt below", models.OperatorGT, 5.0, 3.0, false},
		{"lt below", models.OperatorLT, 5.0, 3.0, true},
		{"lt equal", models.OperatorLT, 5.0, 5.0, false},
		{"gte equal", models.OperatorGTE, 5.0, 5.0, true},
		{"gte below", models.OperatorGTE, 5.0, 4.99, false},
		{"lte equal", models.OperatorLTE, 5.0, 5.0, true},
		{"lte above", models.OperatorLTE, 5.0, 5.01, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Apply(tt.op, tt.threshold, tt.value))
		})
	}
}

func TestApplyUnknownOperator(t *testing.T) {
	assert.False(t, Apply(models.MetricOperator("EQ"), 1.0, 1.0))
	assert.False(t, Apply(models.MetricOperator(""), 1.0, 2.0))
}

func TestLookup(t *testing.T) {
	for _, op := range []models.MetricOperator{models.OperatorGT, models.OperatorLT, models.OperatorGTE, models.OperatorLTE} {
		pred, ok := Lookup(op)
		assert.True(t, ok, "operator %s should be registered", op)
		assert.NotNil(t, pred)
	}

	_, ok := Lookup(models.MetricOperator("NEQ"))
	assert.False(t, ok)
}
