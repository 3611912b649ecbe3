package operators

import (
	"github.com/pulseapm/alert-engine/pkg/models"
)

// Predicate compares an observed value against a threshold
type Predicate func(threshold, value float64) bool

// registry is the pure operator-to-predicate mapping. No side effects, no
// failure modes beyond an unknown operator.
var registry = map[models.MetricOperator]Predicate{
	models.OperatorGT:  func(threshold, value float64) bool { return value > threshold },
	models.OperatorLT:  func(threshold, value float64) bool { return value < threshold },
	models.OperatorGTE: func(threshold, value float64) bool { return value >= threshold },
	models.OperatorLTE: func(threshold, value float64) bool { return value <= threshold },
}

// Lookup returns the predicate for the given operator
func Lookup(op models.MetricOperator) (Predicate, bool) {
	p, ok := registry[op]
	return p, ok
}

// Apply evaluates value against threshold with the given operator. Unknown
// operators compare as false.
func Apply(op models.MetricOperator, threshold, value float64) bool {
	p, ok := registry[op]
	if !ok {
		return false
	}
	return p(threshold, value)
}
