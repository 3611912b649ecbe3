package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pulseapm/alert-engine/pkg/evaluation"
	"github.com/pulseapm/alert-engine/pkg/metrics"
	"github.com/pulseapm/alert-engine/pkg/models"
	"github.com/pulseapm/alert-engine/pkg/notify"
	"github.com/pulseapm/alert-engine/pkg/query"
	"github.com/pulseapm/alert-engine/pkg/serializer"
	"github.com/pulseapm/alert-engine/pkg/storage"
	"github.com/pulseapm/alert-engine/pkg/telemetry"
)

const eventBufferSize = 64

// Orchestrator drives evaluation runs: build query, execute, evaluate,
// publish one outcome event per scope (or one failure event per run) onto an
// in-process topic consumed independently by the state-updater and the
// history-logger. A run never throws past its boundary; every failure is
// converted into the failure event.
type Orchestrator struct {
	repo      storage.Repository
	executor  telemetry.Executor
	builder   *query.Builder
	evaluator *evaluation.MetricEvaluator
	sink      notify.Sink
	ser       serializer.Serializer
	now       func() time.Time

	stateCh   chan models.OutcomeEvent
	historyCh chan models.OutcomeEvent

	runMu   sync.Mutex
	stopped bool

	runWG      sync.WaitGroup
	consumerWG sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

// NewOrchestrator wires the evaluation pipeline
func NewOrchestrator(repo storage.Repository, executor telemetry.Executor, builder *query.Builder, sink notify.Sink, ser serializer.Serializer) *Orchestrator {
	return &Orchestrator{
		repo:      repo,
		executor:  executor,
		builder:   builder,
		evaluator: evaluation.NewMetricEvaluator(),
		sink:      sink,
		ser:       ser,
		now:       time.Now,
		stateCh:   make(chan models.OutcomeEvent, eventBufferSize),
		historyCh: make(chan models.OutcomeEvent, eventBufferSize),
	}
}

// WithClock overrides the time source, used by tests
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Start launches the two consumers. The consumers are independent failure
// domains: an error or a stall in one never blocks or aborts the other.
func (o *Orchestrator) Start() {
	o.startOnce.Do(func() {
		o.consumerWG.Add(2)
		go o.consume("state_updater", o.stateCh, o.handleStateUpdate)
		go o.consume("history_logger", o.historyCh, o.handleHistory)
		logrus.Info("Evaluation orchestrator started")
	})
}

// Stop refuses new runs, waits for in-flight ones, then drains and stops
// the consumers.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.runMu.Lock()
		o.stopped = true
		o.runMu.Unlock()
		o.runWG.Wait()
		close(o.stateCh)
		close(o.historyCh)
		o.consumerWG.Wait()
		logrus.Info("Evaluation orchestrator stopped")
	})
}

// publish delivers one event to each consumer channel. The sends happen
// concurrently so each consumer receives its copy even while the other is
// stalled.
func (o *Orchestrator) publish(ev models.OutcomeEvent) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.stateCh <- ev
	}()
	go func() {
		defer wg.Done()
		o.historyCh <- ev
	}()
	wg.Wait()
}

func (o *Orchestrator) consume(name string, ch <-chan models.OutcomeEvent, handle func(models.OutcomeEvent)) {
	defer o.consumerWG.Done()
	for ev := range ch {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logrus.Errorf("Recovered panic in %s consumer: %v", name, r)
					metrics.PanicsRecovered.WithLabelValues(name).Inc()
				}
			}()
			handle(ev)
		}()
	}
}

// EvaluateAlert triggers one evaluation run and returns an acknowledgement
// immediately. The run itself proceeds asynchronously; its results surface
// through persisted scope state and history, never through this call.
func (o *Orchestrator) EvaluateAlert(ctx context.Context, alertID string) (*models.EvaluationAck, error) {
	alert, err := o.repo.GetAlertDetails(ctx, alertID)
	if err != nil {
		return nil, err
	}

	o.runMu.Lock()
	if o.stopped {
		o.runMu.Unlock()
		return nil, fmt.Errorf("orchestrator is stopped, refusing evaluation of alert %s", alertID)
	}
	o.runWG.Add(1)
	o.runMu.Unlock()

	queryID := uuid.New().String()
	go func() {
		defer o.runWG.Done()
		o.run(alert, queryID)
	}()

	return &models.EvaluationAck{AlertID: alertID, QueryID: queryID}, nil
}

// run executes one evaluation cycle. Exactly one outcome publication happens
// per run: either one COMPLETED event per scope, or a single FAILED event.
// A run for an alert with no scopes terminates silently.
func (o *Orchestrator) run(alert *models.Alert, queryID string) {
	ctx := context.Background()
	start := o.now().UTC()
	windowStart := start.Add(-time.Duration(alert.EvaluationPeriod) * time.Minute)

	published := false
	fail := func(err error) {
		logrus.Errorf("Evaluation run %s for alert %s failed: %v", queryID, alert.ID, err)
		o.publish(models.OutcomeEvent{
			Alert:       alert,
			Status:      models.EvaluationFailed,
			Error:       err.Error(),
			TimeTaken:   o.now().UTC().Sub(start),
			WindowStart: windowStart,
			WindowEnd:   start,
		})
		published = true
		metrics.EvaluationRunsTotal.WithLabelValues("failed").Inc()
	}

	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Recovered panic in evaluation run %s: %v", queryID, r)
			metrics.PanicsRecovered.WithLabelValues("evaluation_run").Inc()
			if !published {
				fail(fmt.Errorf("panic during evaluation: %v", r))
			}
		}
	}()

	scopes, err := o.repo.GetAlertScopes(ctx, alert.ID)
	if err != nil {
		fail(err)
		return
	}
	if len(scopes) == 0 {
		logrus.Infof("Alert %s has no scopes, skipping run %s", alert.ID, queryID)
		metrics.EvaluationRunsTotal.WithLabelValues("skipped").Inc()
		return
	}

	req, err := o.builder.Build(alert, scopes)
	if err != nil {
		fail(err)
		return
	}

	result, err := o.executor.GetMetricDistribution(ctx, req)
	if err != nil {
		fail(err)
		return
	}

	outcomes := o.evaluator.Evaluate(alert, scopes, result)
	elapsed := o.now().UTC().Sub(start)

	for _, outcome := range outcomes {
		o.publish(models.OutcomeEvent{
			Alert:       alert,
			ScopeID:     outcome.ScopeID,
			Result:      outcome.Result,
			TimeTaken:   elapsed,
			WindowStart: windowStart,
			WindowEnd:   start,
			Status:      models.EvaluationCompleted,
			State:       outcome.State,
		})
		metrics.ScopeOutcomesTotal.WithLabelValues(string(outcome.State)).Inc()
	}
	published = true
	metrics.EvaluationRunsTotal.WithLabelValues("completed").Inc()
	metrics.EvaluationDuration.Observe(elapsed.Seconds())
}

// handleStateUpdate persists the new scope state and applies the
// notification policy. A failure event without a scope id degrades every
// scope of the alert to ERRORED.
func (o *Orchestrator) handleStateUpdate(ev models.OutcomeEvent) {
	ctx := context.Background()

	if ev.Status == models.EvaluationFailed {
		for _, scopeID := range o.failedScopeIDs(ctx, ev) {
			if _, err := o.repo.UpdateScopeState(ctx, scopeID, models.StateErrored); err != nil {
				logrus.Errorf("Failed to mark scope %s as errored: %v", scopeID, err)
				metrics.ConsumerErrorsTotal.WithLabelValues("state_updater").Inc()
			}
		}
		return
	}

	// Previous state must be read before the write, the notification policy
	// is edge-triggered on it.
	previous, prevErr := o.repo.GetScopeState(ctx, ev.ScopeID)
	if prevErr != nil {
		logrus.Warnf("Could not read previous state of scope %s: %v", ev.ScopeID, prevErr)
	}

	if _, err := o.repo.UpdateScopeState(ctx, ev.ScopeID, ev.State); err != nil {
		logrus.Errorf("Failed to update state of scope %s: %v", ev.ScopeID, err)
		metrics.ConsumerErrorsTotal.WithLabelValues("state_updater").Inc()
		return
	}

	// An unknown previous state cannot prove a transition, so it never
	// notifies. The scope may already have been FIRING.
	if prevErr != nil {
		if ev.State == models.StateFiring {
			metrics.NotificationsTotal.WithLabelValues("suppressed").Inc()
		}
		return
	}

	if !o.shouldNotify(ev.Alert, ev.State, previous) {
		if ev.State == models.StateFiring {
			metrics.NotificationsTotal.WithLabelValues("suppressed").Inc()
		}
		return
	}

	scope, err := o.repo.GetScope(ctx, ev.ScopeID)
	if err != nil {
		logrus.Errorf("Could not load scope %s for notification: %v", ev.ScopeID, err)
		metrics.ConsumerErrorsTotal.WithLabelValues("state_updater").Inc()
		return
	}

	msg := composeNotification(ev, scope.Name)
	if err := o.sink.Send(ctx, msg); err != nil {
		// Fire-and-forget: delivery failure is logged, not retried
		logrus.Errorf("Notification delivery failed for scope %s: %v", ev.ScopeID, err)
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		return
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}

// handleHistory appends one history entry per outcome. Failure events append
// an empty result with state ERRORED for each affected scope.
func (o *Orchestrator) handleHistory(ev models.OutcomeEvent) {
	ctx := context.Background()

	if ev.Status == models.EvaluationFailed {
		for _, scopeID := range o.failedScopeIDs(ctx, ev) {
			if _, err := o.repo.CreateEvaluationHistory(ctx, scopeID, "{}", models.StateErrored); err != nil {
				logrus.Errorf("Failed to append errored history for scope %s: %v", scopeID, err)
				metrics.ConsumerErrorsTotal.WithLabelValues("history_logger").Inc()
			}
		}
		return
	}

	payload, err := o.ser.Marshal(ev.Result)
	if err != nil {
		logrus.Warnf("Could not serialize evaluation result for scope %s: %v", ev.ScopeID, err)
		payload = []byte("{}")
	}
	if _, err := o.repo.CreateEvaluationHistory(ctx, ev.ScopeID, string(payload), ev.State); err != nil {
		logrus.Errorf("Failed to append history for scope %s: %v", ev.ScopeID, err)
		metrics.ConsumerErrorsTotal.WithLabelValues("history_logger").Inc()
	}
}

// failedScopeIDs resolves which scopes a failure event applies to
func (o *Orchestrator) failedScopeIDs(ctx context.Context, ev models.OutcomeEvent) []string {
	if ev.ScopeID != "" {
		return []string{ev.ScopeID}
	}
	scopes, err := o.repo.GetAlertScopes(ctx, ev.Alert.ID)
	if err != nil {
		logrus.Errorf("Could not load scopes of alert %s for failure handling: %v", ev.Alert.ID, err)
		return nil
	}
	ids := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		ids = append(ids, scope.ID)
	}
	return ids
}

// shouldNotify implements the notification policy: suppressed while the
// alert is snoozed, suppressed on NO_DATA, and otherwise edge-triggered on
// the transition into FIRING. Sustained FIRING across cycles notifies once.
func (o *Orchestrator) shouldNotify(alert *models.Alert, newState, previous models.AlertState) bool {
	if evaluation.IsSnoozed(alert.SnoozedFrom, alert.SnoozedUntil, o.now()) {
		return false
	}
	if newState == models.StateNoData {
		return false
	}
	return newState == models.StateFiring && newState != previous
}

// composeNotification builds the breach message: alert name, scope name,
// representative reading, evaluation window and the flattened reading list.
func composeNotification(ev models.OutcomeEvent, scopeName string) notify.Message {
	msg := notify.Message{
		AlertID:   ev.Alert.ID,
		AlertName: ev.Alert.Name,
		ScopeName: scopeName,
		Severity:  string(ev.Alert.Severity),
	}

	var parts []string
	if metric, value, ok := representativeReading(ev.Result); ok {
		msg.MetricName = metric
		msg.Value = value
		parts = append(parts, fmt.Sprintf("%s is %.2f", metric, value))
	}
	parts = append(parts, fmt.Sprintf("window %s to %s",
		ev.WindowStart.Format(time.RFC3339), ev.WindowEnd.Format(time.RFC3339)))
	parts = append(parts, "readings: "+flattenReadings(ev.Result))

	msg.Text = fmt.Sprintf("Alert %q is firing for scope %q: %s",
		ev.Alert.Name, scopeName, strings.Join(parts, ", "))
	return msg
}

// representativeReading returns the first numeric reading by metric name
// order, so the headline value is deterministic.
func representativeReading(result models.EvaluationResult) (string, float64, bool) {
	for _, metric := range sortedMetrics(result) {
		if v := result[metric]; v != nil {
			return metric, *v, true
		}
	}
	return "", 0, false
}

func flattenReadings(result models.EvaluationResult) string {
	if len(result) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(result))
	for _, metric := range sortedMetrics(result) {
		if v := result[metric]; v != nil {
			parts = append(parts, fmt.Sprintf("%s=%.2f", metric, *v))
		} else {
			parts = append(parts, metric+"=null")
		}
	}
	return strings.Join(parts, " ")
}

func sortedMetrics(result models.EvaluationResult) []string {
	names := make([]string, 0, len(result))
	for metric := range result {
		names = append(names, metric)
	}
	sort.Strings(names)
	return names
}
