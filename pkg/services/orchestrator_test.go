package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pulseapm/alert-engine/pkg/models"
	"github.com/pulseapm/alert-engine/pkg/notify"
	"github.com/pulseapm/alert-engine/pkg/query"
	"github.com/pulseapm/alert-engine/pkg/serializer"
	"github.com/pulseapm/alert-engine/pkg/telemetry"
)

var orchNow = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return orchNow }

func newTestOrchestrator(repo *MockRepository, executor *MockExecutor, sink *MockSink) *Orchestrator {
	builder := query.NewBuilder(telemetry.ResolveMetric).WithClock(fixedClock)
	return NewOrchestrator(repo, executor, builder, sink, serializer.NewJSON()).WithClock(fixedClock)
}

func orchTestAlert() *models.Alert {
	return &models.Alert{
		ID:                  "alert-1",
		Name:                "checkout error rate",
		ScopeKind:           models.ScopeKindScreen,
		ConditionExpression: "c1",
		EvaluationPeriod:    15,
		EvaluationInterval:  60,
		Severity:            models.SeverityCritical,
	}
}

func orchTestScope() *models.Scope {
	return &models.Scope{
		ID:      "scope-1",
		AlertID: "alert-1",
		Name:    "CheckoutScreen",
		Conditions: []models.ConditionSpec{
			{Alias: "c1", Metric: "ERROR_RATE", Operator: models.OperatorGT, Threshold: json.Number("0.05")},
		},
		State: models.StateNormal,
	}
}

func firingResult() *query.Result {
	return &query.Result{
		Fields: []string{"time_bucket", "scope_name", "ERROR_RATE"},
		Rows: [][]string{
			{"2026-03-01T10:15:00Z", "CheckoutScreen", "0.10"},
		},
	}
}

// runToCompletion triggers one evaluation and shuts the orchestrator down,
// which blocks until the run finished and both consumers drained.
func runToCompletion(t *testing.T, o *Orchestrator, alertID string) *models.EvaluationAck {
	t.Helper()
	o.Start()
	ack, err := o.EvaluateAlert(context.Background(), alertID)
	require.NoError(t, err)
	o.Stop()
	return ack
}

func TestEvaluateAlertReturnsAck(t *testing.T) {
	repo := new(MockRepository)
	executor := new(MockExecutor)
	sink := new(MockSink)
	alert := orchTestAlert()

	repo.On("GetAlertDetails", mock.Anything, "alert-1").Return(alert, nil)
	repo.On("GetAlertScopes", mock.Anything, "alert-1").Return([]*models.Scope{}, nil)

	o := newTestOrchestrator(repo, executor, sink)
	ack := runToCompletion(t, o, "alert-1")

	assert.Equal(t, "alert-1", ack.AlertID)
	assert.NotEmpty(t, ack.QueryID)
	// no scopes means no query and no events
	executor.AssertNotCalled(t, "GetMetricDistribution", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "UpdateScopeState", mock.Anything, mock.Anything, mock.Anything)
}

func TestEvaluateAlertUnknownAlert(t *testing.T) {
	repo := new(MockRepository)
	repo.On("GetAlertDetails", mock.Anything, "ghost").
		Return(nil, fmt.Errorf("%w: ghost", models.ErrAlertNotFound))

	o := newTestOrchestrator(repo, new(MockExecutor), new(MockSink))
	_, err := o.EvaluateAlert(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrAlertNotFound))
}

func TestRunNotifiesOnTransitionToFiring(t *testing.T) {
	repo := new(MockRepository)
	executor := new(MockExecutor)
	sink := new(MockSink)
	alert := orchTestAlert()
	scope := orchTestScope()

	repo.On("GetAlertDetails", mock.Anything, "alert-1").Return(alert, nil)
	repo.On("GetAlertScopes", mock.Anything, "alert-1").Return([]*models.Scope{scope}, nil)
	executor.On("GetMetricDistribution", mock.Anything, mock.Anything).Return(firingResult(), nil)
	repo.On("GetScopeState", mock.Anything, "scope-1").Return(models.StateNormal, nil)
	repo.On("UpdateScopeState", mock.Anything, "scope-1", models.StateFiring).Return(true, nil)
	repo.On("GetScope", mock.Anything, "scope-1").Return(scope, nil)
	repo.On("CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateFiring).Return(true, nil)

	var sent notify.Message
	sink.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(notify.Message)
	}).Return(nil)

	o := newTestOrchestrator(repo, executor, sink)
	runToCompletion(t, o, "alert-1")

	sink.AssertNumberOfCalls(t, "Send", 1)
	assert.Equal(t, "alert-1", sent.AlertID)
	assert.Equal(t, "checkout error rate", sent.AlertName)
	assert.Equal(t, "CheckoutScreen", sent.ScopeName)
	assert.Contains(t, sent.Text, "0.10")
	repo.AssertCalled(t, "UpdateScopeState", mock.Anything, "scope-1", models.StateFiring)
	repo.AssertCalled(t, "CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateFiring)
}

func TestRunSustainedFiringDoesNotRenotify(t *testing.T) {
	repo := new(MockRepository)
	executor := new(MockExecutor)
	sink := new(MockSink)
	alert := orchTestAlert()
	scope := orchTestScope()
	scope.State = models.StateFiring

	repo.On("GetAlertDetails", mock.Anything, "alert-1").Return(alert, nil)
	repo.On("GetAlertScopes", mock.Anything, "alert-1").Return([]*models.Scope{scope}, nil)
	executor.On("GetMetricDistribution", mock.Anything, mock.Anything).Return(firingResult(), nil)
	repo.On("GetScopeState", mock.Anything, "scope-1").Return(models.StateFiring, nil)
	repo.On("UpdateScopeState", mock.Anything, "scope-1", models.StateFiring).Return(true, nil)
	repo.On("CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateFiring).Return(true, nil)

	o := newTestOrchestrator(repo, executor, sink)
	runToCompletion(t, o, "alert-1")

	sink.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	// state and history still persist each cycle
	repo.AssertCalled(t, "UpdateScopeState", mock.Anything, "scope-1", models.StateFiring)
	repo.AssertCalled(t, "CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateFiring)
}

func TestRunRenotifiesAfterRecovery(t *testing.T) {
	repo := new(MockRepository)
	executor := new(MockExecutor)
	sink := new(MockSink)
	alert := orchTestAlert()
	scope := orchTestScope()

	repo.On("GetAlertDetails", mock.Anything, "alert-1").Return(alert, nil)
	repo.On("GetAlertScopes", mock.Anything, "alert-1").Return([]*models.Scope{scope}, nil)
	executor.On("GetMetricDistribution", mock.Anything, mock.Anything).Return(firingResult(), nil)
	// previous cycle had recovered to NORMAL
	repo.On("GetScopeState", mock.Anything, "scope-1").Return(models.StateNormal, nil)
	repo.On("UpdateScopeState", mock.Anything, "scope-1", models.StateFiring).Return(true, nil)
	repo.On("GetScope", mock.Anything, "scope-1").Return(scope, nil)
	repo.On("CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateFiring).Return(true, nil)
	sink.On("Send", mock.Anything, mock.Anything).Return(nil)

	o := newTestOrchestrator(repo, executor, sink)
	runToCompletion(t, o, "alert-1")

	sink.AssertNumberOfCalls(t, "Send", 1)
}

func TestRunSnoozedSuppressesNotification(t *testing.T) {
	repo := new(MockRepository)
	executor := new(MockExecutor)
	sink := new(MockSink)
	alert := orchTestAlert()
	from := orchNow.Add(-time.Hour)
	until := orchNow.Add(time.Hour)
	alert.SnoozedFrom = &from
	alert.SnoozedUntil = &until
	scope := orchTestScope()

	repo.On("GetAlertDetails", mock.Anything, "alert-1").Return(alert, nil)
	repo.On("GetAlertScopes", mock.Anything, "alert-1").Return([]*models.Scope{scope}, nil)
	executor.On("GetMetricDistribution", mock.Anything, mock.Anything).Return(firingResult(), nil)
	repo.On("GetScopeState", mock.Anything, "scope-1").Return(models.StateNormal, nil)
	repo.On("UpdateScopeState", mock.Anything, "scope-1", models.StateFiring).Return(true, nil)
	repo.On("CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateFiring).Return(true, nil)

	o := newTestOrchestrator(repo, executor, sink)
	runToCompletion(t, o, "alert-1")

	// state transitions and history proceed, only delivery is suppressed
	sink.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	repo.AssertCalled(t, "UpdateScopeState", mock.Anything, "scope-1", models.StateFiring)
	repo.AssertCalled(t, "CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateFiring)
}

func TestRunNoDataSuppressed(t *testing.T) {
	repo := new(MockRepository)
	executor := new(MockExecutor)
	sink := new(MockSink)
	alert := orchTestAlert()
	scope := orchTestScope()

	repo.On("GetAlertDetails", mock.Anything, "alert-1").Return(alert, nil)
	repo.On("GetAlertScopes", mock.Anything, "alert-1").Return([]*models.Scope{scope}, nil)
	executor.On("GetMetricDistribution", mock.Anything, mock.Anything).Return(&query.Result{}, nil)
	repo.On("GetScopeState", mock.Anything, "scope-1").Return(models.StateNormal, nil)
	repo.On("UpdateScopeState", mock.Anything, "scope-1", models.StateNoData).Return(true, nil)
	repo.On("CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateNoData).Return(true, nil)

	o := newTestOrchestrator(repo, executor, sink)
	runToCompletion(t, o, "alert-1")

	sink.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	repo.AssertCalled(t, "UpdateScopeState", mock.Anything, "scope-1", models.StateNoData)
	repo.AssertCalled(t, "CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateNoData)
}

func TestRunQueryFailureMarksScopesErrored(t *testing.T) {
	repo := new(MockRepository)
	executor := new(MockExecutor)
	sink := new(MockSink)
	alert := orchTestAlert()
	scopes := []*models.Scope{orchTestScope(), {
		ID: "scope-2", AlertID: "alert-1", Name: "LoginScreen",
		Conditions: orchTestScope().Conditions,
	}}

	repo.On("GetAlertDetails", mock.Anything, "alert-1").Return(alert, nil)
	repo.On("GetAlertScopes", mock.Anything, "alert-1").Return(scopes, nil)
	executor.On("GetMetricDistribution", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: connection refused", models.ErrQueryExecution))
	repo.On("UpdateScopeState", mock.Anything, "scope-1", models.StateErrored).Return(true, nil)
	repo.On("UpdateScopeState", mock.Anything, "scope-2", models.StateErrored).Return(true, nil)
	repo.On("CreateEvaluationHistory", mock.Anything, "scope-1", "{}", models.StateErrored).Return(true, nil)
	repo.On("CreateEvaluationHistory", mock.Anything, "scope-2", "{}", models.StateErrored).Return(true, nil)

	o := newTestOrchestrator(repo, executor, sink)
	runToCompletion(t, o, "alert-1")

	sink.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	repo.AssertCalled(t, "UpdateScopeState", mock.Anything, "scope-1", models.StateErrored)
	repo.AssertCalled(t, "UpdateScopeState", mock.Anything, "scope-2", models.StateErrored)
	repo.AssertCalled(t, "CreateEvaluationHistory", mock.Anything, "scope-1", "{}", models.StateErrored)
	repo.AssertCalled(t, "CreateEvaluationHistory", mock.Anything, "scope-2", "{}", models.StateErrored)
}

func TestRunHistoryCarriesReadings(t *testing.T) {
	repo := new(MockRepository)
	executor := new(MockExecutor)
	sink := new(MockSink)
	alert := orchTestAlert()
	scope := orchTestScope()

	repo.On("GetAlertDetails", mock.Anything, "alert-1").Return(alert, nil)
	repo.On("GetAlertScopes", mock.Anything, "alert-1").Return([]*models.Scope{scope}, nil)
	executor.On("GetMetricDistribution", mock.Anything, mock.Anything).Return(firingResult(), nil)
	repo.On("GetScopeState", mock.Anything, "scope-1").Return(models.StateFiring, nil)
	repo.On("UpdateScopeState", mock.Anything, "scope-1", models.StateFiring).Return(true, nil)

	var recorded string
	repo.On("CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateFiring).
		Run(func(args mock.Arguments) { recorded = args.String(2) }).
		Return(true, nil)

	o := newTestOrchestrator(repo, executor, sink)
	runToCompletion(t, o, "alert-1")

	var readings models.EvaluationResult
	require.NoError(t, json.Unmarshal([]byte(recorded), &readings))
	require.NotNil(t, readings["ERROR_RATE"])
	assert.InDelta(t, 0.10, *readings["ERROR_RATE"], 1e-9)
}

func TestRunNotificationDeliveryFailureIsSwallowed(t *testing.T) {
	repo := new(MockRepository)
	executor := new(MockExecutor)
	sink := new(MockSink)
	alert := orchTestAlert()
	scope := orchTestScope()

	repo.On("GetAlertDetails", mock.Anything, "alert-1").Return(alert, nil)
	repo.On("GetAlertScopes", mock.Anything, "alert-1").Return([]*models.Scope{scope}, nil)
	executor.On("GetMetricDistribution", mock.Anything, mock.Anything).Return(firingResult(), nil)
	repo.On("GetScopeState", mock.Anything, "scope-1").Return(models.StateNormal, nil)
	repo.On("UpdateScopeState", mock.Anything, "scope-1", models.StateFiring).Return(true, nil)
	repo.On("GetScope", mock.Anything, "scope-1").Return(scope, nil)
	repo.On("CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateFiring).Return(true, nil)
	sink.On("Send", mock.Anything, mock.Anything).Return(errors.New("webhook down"))

	o := newTestOrchestrator(repo, executor, sink)
	runToCompletion(t, o, "alert-1")

	// the history consumer is unaffected by the delivery failure
	repo.AssertCalled(t, "CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateFiring)
}

func TestEvaluateAlertAfterStopIsRefused(t *testing.T) {
	repo := new(MockRepository)
	executor := new(MockExecutor)
	sink := new(MockSink)

	repo.On("GetAlertDetails", mock.Anything, "alert-1").Return(orchTestAlert(), nil)
	repo.On("GetAlertScopes", mock.Anything, "alert-1").Return([]*models.Scope{orchTestScope()}, nil)
	executor.On("GetMetricDistribution", mock.Anything, mock.Anything).Return(firingResult(), nil)

	o := newTestOrchestrator(repo, executor, sink)
	o.Start()
	o.Stop()

	ack, err := o.EvaluateAlert(context.Background(), "alert-1")
	require.Error(t, err)
	assert.Nil(t, ack)
	// no run was launched, nothing reached the consumers
	executor.AssertNotCalled(t, "GetMetricDistribution", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "UpdateScopeState", mock.Anything, mock.Anything, mock.Anything)
	sink.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestRunUnknownPreviousStateSuppressesNotification(t *testing.T) {
	repo := new(MockRepository)
	executor := new(MockExecutor)
	sink := new(MockSink)
	alert := orchTestAlert()
	scope := orchTestScope()

	repo.On("GetAlertDetails", mock.Anything, "alert-1").Return(alert, nil)
	repo.On("GetAlertScopes", mock.Anything, "alert-1").Return([]*models.Scope{scope}, nil)
	executor.On("GetMetricDistribution", mock.Anything, mock.Anything).Return(firingResult(), nil)
	// the scope may already have been FIRING, transient read error hides it
	repo.On("GetScopeState", mock.Anything, "scope-1").
		Return(models.AlertState(""), fmt.Errorf("%w: read timeout", models.ErrRepository))
	repo.On("UpdateScopeState", mock.Anything, "scope-1", models.StateFiring).Return(true, nil)
	repo.On("CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateFiring).Return(true, nil)

	o := newTestOrchestrator(repo, executor, sink)
	runToCompletion(t, o, "alert-1")

	sink.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	// the write itself still proceeds
	repo.AssertCalled(t, "UpdateScopeState", mock.Anything, "scope-1", models.StateFiring)
	repo.AssertCalled(t, "CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateFiring)
}

func TestHistoryConsumerUnaffectedByStalledStateConsumer(t *testing.T) {
	repo := new(MockRepository)
	executor := new(MockExecutor)
	sink := new(MockSink)
	alert := orchTestAlert()
	scope := orchTestScope()

	release := make(chan struct{})
	historyDone := make(chan struct{})

	repo.On("GetAlertDetails", mock.Anything, "alert-1").Return(alert, nil)
	repo.On("GetAlertScopes", mock.Anything, "alert-1").Return([]*models.Scope{scope}, nil)
	executor.On("GetMetricDistribution", mock.Anything, mock.Anything).Return(firingResult(), nil)
	// the state consumer stalls here until released
	repo.On("GetScopeState", mock.Anything, "scope-1").
		Run(func(mock.Arguments) { <-release }).
		Return(models.StateFiring, nil)
	repo.On("UpdateScopeState", mock.Anything, "scope-1", models.StateFiring).Return(true, nil)
	repo.On("CreateEvaluationHistory", mock.Anything, "scope-1", mock.Anything, models.StateFiring).
		Run(func(mock.Arguments) { close(historyDone) }).
		Return(true, nil)

	o := newTestOrchestrator(repo, executor, sink)
	o.Start()
	_, err := o.EvaluateAlert(context.Background(), "alert-1")
	require.NoError(t, err)

	select {
	case <-historyDone:
	case <-time.After(3 * time.Second):
		t.Fatal("history entry was not written while the state consumer was stalled")
	}

	close(release)
	o.Stop()
	repo.AssertCalled(t, "UpdateScopeState", mock.Anything, "scope-1", models.StateFiring)
}
