// Package storage persists alerts, scopes and evaluation history.
package storage

import (
	"context"

	"github.com/pulseapm/alert-engine/pkg/models"
)

// Repository is the persistence contract consumed by the services layer
type Repository interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	GetAlertDetails(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context) ([]*models.Alert, error)
	UpdateAlert(ctx context.Context, alert *models.Alert) error
	DeleteAlert(ctx context.Context, id string) error

	CreateScopes(ctx context.Context, scopes []*models.Scope) error
	GetAlertScopes(ctx context.Context, alertID string) ([]*models.Scope, error)
	GetScope(ctx context.Context, scopeID string) (*models.Scope, error)
	GetScopeState(ctx context.Context, scopeID string) (models.AlertState, error)
	UpdateScopeState(ctx context.Context, scopeID string, state models.AlertState) (bool, error)

	CreateEvaluationHistory(ctx context.Context, scopeID string, resultJSON string, state models.AlertState) (bool, error)
	ListEvaluationHistory(ctx context.Context, scopeID string, limit int) ([]*models.EvaluationHistoryEntry, error)
}
