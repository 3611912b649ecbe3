package models

import (
	"time"
)

// ScopeSpec names one sub-target at alert-creation time. Conditions may be
// omitted to inherit the alert-level condition list; providing them lets the
// same alias carry a different threshold per scope.
type ScopeSpec struct {
	Name       string          `json:"name"`
	Conditions []ConditionSpec `json:"conditions,omitempty"`
}

// CreateAlertRequest is the request payload for creating an alert
type CreateAlertRequest struct {
	Name                string          `json:"name"`
	ScopeKind           ScopeKind       `json:"scopeKind"`
	DimensionFilter     string          `json:"dimensionFilter,omitempty"`
	ConditionExpression string          `json:"conditionExpression"`
	EvaluationPeriod    int             `json:"evaluationPeriod"`
	EvaluationInterval  int             `json:"evaluationInterval"`
	Severity            AlertSeverity   `json:"severity"`
	NotificationChannel string          `json:"notificationChannel,omitempty"`
	Conditions          []ConditionSpec `json:"conditions"`
	Scopes              []ScopeSpec     `json:"scopes"`
}

// UpdateAlertRequest is the request payload for updating an alert
type UpdateAlertRequest struct {
	Name                *string        `json:"name,omitempty"`
	ConditionExpression *string        `json:"conditionExpression,omitempty"`
	DimensionFilter     *string        `json:"dimensionFilter,omitempty"`
	EvaluationPeriod    *int           `json:"evaluationPeriod,omitempty"`
	EvaluationInterval  *int           `json:"evaluationInterval,omitempty"`
	Severity            *AlertSeverity `json:"severity,omitempty"`
	NotificationChannel *string        `json:"notificationChannel,omitempty"`
}

// SnoozeRequest is the request payload for snoozing an alert
type SnoozeRequest struct {
	From  time.Time `json:"from"`
	Until time.Time `json:"until"`
}
