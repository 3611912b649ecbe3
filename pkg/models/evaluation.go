package models

import (
	"time"
)

// EvaluationStatus is the terminal status of one evaluation run
type EvaluationStatus string

const (
	EvaluationCompleted EvaluationStatus = "COMPLETED"
	EvaluationFailed    EvaluationStatus = "FAILED"
)

// EvaluationResult maps metric name to the reading observed for a scope.
// Readings are nil when the telemetry store returned no data.
type EvaluationResult map[string]*float64

// EvaluationOutcome is the transient result of evaluating one scope in one run
type EvaluationOutcome struct {
	ScopeID string
	State   AlertState
	Firing  bool
	Result  EvaluationResult
}

// OutcomeEvent is the internal pub/sub payload published once per scope on a
// successful run, or exactly once (with an empty ScopeID) when the run fails
// before per-scope results exist.
type OutcomeEvent struct {
	Alert       *Alert
	ScopeID     string
	Result      EvaluationResult
	TimeTaken   time.Duration
	WindowStart time.Time
	WindowEnd   time.Time
	Status      EvaluationStatus
	Error       string
	State       AlertState
}

// EvaluationAck is the immediate acknowledgement returned by the trigger
// call. It is not the evaluation result; the run continues asynchronously.
type EvaluationAck struct {
	AlertID string `json:"alertId"`
	QueryID string `json:"queryId"`
}

// EvaluationHistoryEntry is one append-only record of a scope evaluation
type EvaluationHistoryEntry struct {
	ID          string     `json:"id"`
	ScopeID     string     `json:"scopeId"`
	Result      string     `json:"result"` // serialized EvaluationResult
	State       AlertState `json:"state"`
	EvaluatedAt time.Time  `json:"evaluatedAt"`
}
