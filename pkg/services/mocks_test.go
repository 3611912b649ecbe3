package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/pulseapm/alert-engine/pkg/models"
	"github.com/pulseapm/alert-engine/pkg/notify"
	"github.com/pulseapm/alert-engine/pkg/query"
)

// MockRepository is a mock implementation of storage.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateAlert(ctx context.Context, alert *models.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func (m *MockRepository) GetAlertDetails(ctx context.Context, id string) (*models.Alert, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Alert), args.Error(1)
}

func (m *MockRepository) ListAlerts(ctx context.Context) ([]*models.Alert, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Alert), args.Error(1)
}

func (m *MockRepository) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func (m *MockRepository) DeleteAlert(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) CreateScopes(ctx context.Context, scopes []*models.Scope) error {
	args := m.Called(ctx, scopes)
	return args.Error(0)
}

func (m *MockRepository) GetAlertScopes(ctx context.Context, alertID string) ([]*models.Scope, error) {
	args := m.Called(ctx, alertID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Scope), args.Error(1)
}

func (m *MockRepository) GetScope(ctx context.Context, scopeID string) (*models.Scope, error) {
	args := m.Called(ctx, scopeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Scope), args.Error(1)
}

func (m *MockRepository) GetScopeState(ctx context.Context, scopeID string) (models.AlertState, error) {
	args := m.Called(ctx, scopeID)
	return args.Get(0).(models.AlertState), args.Error(1)
}

func (m *MockRepository) UpdateScopeState(ctx context.Context, scopeID string, state models.AlertState) (bool, error) {
	args := m.Called(ctx, scopeID, state)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) CreateEvaluationHistory(ctx context.Context, scopeID string, resultJSON string, state models.AlertState) (bool, error) {
	args := m.Called(ctx, scopeID, resultJSON, state)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ListEvaluationHistory(ctx context.Context, scopeID string, limit int) ([]*models.EvaluationHistoryEntry, error) {
	args := m.Called(ctx, scopeID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.EvaluationHistoryEntry), args.Error(1)
}

// MockExecutor is a mock implementation of telemetry.Executor
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) GetMetricDistribution(ctx context.Context, req *query.Request) (*query.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*query.Result), args.Error(1)
}

// MockSink is a mock implementation of notify.Sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Send(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockScheduler is a mock implementation of Scheduler
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Register(alertID string, intervalSeconds int) error {
	args := m.Called(alertID, intervalSeconds)
	return args.Error(0)
}

func (m *MockScheduler) Deregister(alertID string) error {
	args := m.Called(alertID)
	return args.Error(0)
}
