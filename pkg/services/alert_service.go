// Package services holds the alert lifecycle service and the evaluation
// orchestrator.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pulseapm/alert-engine/pkg/evaluation"
	"github.com/pulseapm/alert-engine/pkg/expr"
	"github.com/pulseapm/alert-engine/pkg/models"
	"github.com/pulseapm/alert-engine/pkg/operators"
	"github.com/pulseapm/alert-engine/pkg/scheduler"
	"github.com/pulseapm/alert-engine/pkg/storage"
)

const (
	defaultHistoryLimit = 100

	scheduleRetryAttempts = 2
	scheduleRetryDelay    = 500 * time.Millisecond
)

// Scheduler is the periodic-trigger contract the service drives
type Scheduler interface {
	Register(alertID string, intervalSeconds int) error
	Deregister(alertID string) error
}

var _ Scheduler = (*scheduler.CronScheduler)(nil)

// AlertService owns the alert lifecycle: creation with scope fan-out,
// updates, soft deletion, snoozing and schedule registration.
type AlertService struct {
	repo  storage.Repository
	sched Scheduler
	now   func() time.Time
}

// NewAlertService creates an alert service
func NewAlertService(repo storage.Repository, sched Scheduler) *AlertService {
	return &AlertService{
		repo:  repo,
		sched: sched,
		now:   time.Now,
	}
}

// CreateAlert validates the request, persists the alert and its scopes and
// registers the periodic schedule. Persistence is never rolled back when
// scheduling fails; the returned error then wraps ErrScheduler and the
// created alert is still returned alongside it.
func (s *AlertService) CreateAlert(ctx context.Context, req *models.CreateAlertRequest) (*models.Alert, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	alert := &models.Alert{
		ID:                  uuid.New().String(),
		Name:                req.Name,
		ScopeKind:           req.ScopeKind,
		DimensionFilter:     models.DimensionFilter{Raw: req.DimensionFilter},
		ConditionExpression: req.ConditionExpression,
		EvaluationPeriod:    req.EvaluationPeriod,
		EvaluationInterval:  req.EvaluationInterval,
		Severity:            req.Severity,
		NotificationChannel: req.NotificationChannel,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	scopes := make([]*models.Scope, 0, len(req.Scopes))
	for _, spec := range req.Scopes {
		conditions := spec.Conditions
		if len(conditions) == 0 {
			conditions = req.Conditions
		}
		scopes = append(scopes, &models.Scope{
			ID:         uuid.New().String(),
			AlertID:    alert.ID,
			Name:       spec.Name,
			Conditions: conditions,
			State:      models.StateNormal,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := s.repo.CreateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	if err := s.repo.CreateScopes(ctx, scopes); err != nil {
		return nil, fmt.Errorf("failed to create alert scopes: %w", err)
	}
	logrus.Infof("Created alert %s (%s) with %d scopes", alert.ID, alert.Name, len(scopes))

	if err := s.registerSchedule(alert); err != nil {
		return alert, err
	}
	return alert, nil
}

// GetAlert returns one alert by id
func (s *AlertService) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	return s.repo.GetAlertDetails(ctx, id)
}

// ListAlerts returns all active alerts
func (s *AlertService) ListAlerts(ctx context.Context) ([]*models.Alert, error) {
	return s.repo.ListAlerts(ctx)
}

// UpdateAlert applies the non-nil fields of the request. Changing the
// evaluation interval re-registers the schedule.
func (s *AlertService) UpdateAlert(ctx context.Context, id string, req *models.UpdateAlertRequest) (*models.Alert, error) {
	alert, err := s.repo.GetAlertDetails(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		alert.Name = *req.Name
	}
	if req.ConditionExpression != nil {
		if err := validateExpression(*req.ConditionExpression); err != nil {
			return nil, err
		}
		alert.ConditionExpression = *req.ConditionExpression
	}
	if req.DimensionFilter != nil {
		alert.DimensionFilter = models.DimensionFilter{Raw: *req.DimensionFilter}
	}
	if req.EvaluationPeriod != nil {
		if *req.EvaluationPeriod <= 0 {
			return nil, fmt.Errorf("%w: evaluation period must be positive", models.ErrValidation)
		}
		alert.EvaluationPeriod = *req.EvaluationPeriod
	}
	intervalChanged := false
	if req.EvaluationInterval != nil {
		if *req.EvaluationInterval <= 0 {
			return nil, fmt.Errorf("%w: evaluation interval must be positive", models.ErrValidation)
		}
		intervalChanged = alert.EvaluationInterval != *req.EvaluationInterval
		alert.EvaluationInterval = *req.EvaluationInterval
	}
	if req.Severity != nil {
		alert.Severity = *req.Severity
	}
	if req.NotificationChannel != nil {
		alert.NotificationChannel = *req.NotificationChannel
	}
	alert.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}

	if intervalChanged {
		if err := s.registerSchedule(alert); err != nil {
			return alert, err
		}
	}
	return alert, nil
}

// DeleteAlert soft-deletes the alert and drops its schedule
func (s *AlertService) DeleteAlert(ctx context.Context, id string) error {
	if err := s.repo.DeleteAlert(ctx, id); err != nil {
		return err
	}
	if err := s.sched.Deregister(id); err != nil {
		logrus.Warnf("Failed to deregister schedule for alert %s: %v", id, err)
	}
	return nil
}

// SnoozeAlert sets the suppression window [from, until). The window is
// stored in UTC and must end after it starts.
func (s *AlertService) SnoozeAlert(ctx context.Context, id string, from, until time.Time) (*models.Alert, error) {
	if !until.After(from) {
		return nil, fmt.Errorf("%w: until %s is not after from %s",
			models.ErrInvalidSnoozeWindow, until.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	alert, err := s.repo.GetAlertDetails(ctx, id)
	if err != nil {
		return nil, err
	}

	f := from.UTC()
	u := until.UTC()
	alert.SnoozedFrom = &f
	alert.SnoozedUntil = &u
	alert.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to snooze alert: %w", err)
	}
	logrus.Infof("Alert %s snoozed from %s until %s", id, f.Format(time.RFC3339), u.Format(time.RFC3339))
	return alert, nil
}

// UnsnoozeAlert clears the suppression window
func (s *AlertService) UnsnoozeAlert(ctx context.Context, id string) (*models.Alert, error) {
	alert, err := s.repo.GetAlertDetails(ctx, id)
	if err != nil {
		return nil, err
	}

	alert.SnoozedFrom = nil
	alert.SnoozedUntil = nil
	alert.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to unsnooze alert: %w", err)
	}
	return alert, nil
}

// IsSnoozed reports whether the alert is currently inside its snooze window
func (s *AlertService) IsSnoozed(alert *models.Alert) bool {
	return evaluation.IsSnoozed(alert.SnoozedFrom, alert.SnoozedUntil, s.now())
}

// GetAlertScopes lists the scopes of one alert
func (s *AlertService) GetAlertScopes(ctx context.Context, alertID string) ([]*models.Scope, error) {
	if _, err := s.repo.GetAlertDetails(ctx, alertID); err != nil {
		return nil, err
	}
	return s.repo.GetAlertScopes(ctx, alertID)
}

// GetScopeHistory lists the most recent evaluation records of one scope
func (s *AlertService) GetScopeHistory(ctx context.Context, scopeID string, limit int) ([]*models.EvaluationHistoryEntry, error) {
	if _, err := s.repo.GetScope(ctx, scopeID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.repo.ListEvaluationHistory(ctx, scopeID, limit)
}

// ResumeSchedules re-registers the schedules of all persisted alerts. Called
// once at startup so restarts do not drop periodic evaluation.
func (s *AlertService) ResumeSchedules(ctx context.Context) error {
	alerts, err := s.repo.ListAlerts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list alerts for schedule resume: %w", err)
	}
	for _, alert := range alerts {
		if err := s.registerSchedule(alert); err != nil {
			logrus.Errorf("Could not resume schedule for alert %s: %v", alert.ID, err)
		}
	}
	logrus.Infof("Resumed schedules for %d alerts", len(alerts))
	return nil
}

func (s *AlertService) registerSchedule(alert *models.Alert) error {
	err := retry(fmt.Sprintf("schedule registration for alert %s", alert.ID),
		scheduleRetryAttempts, scheduleRetryDelay, func() error {
			return s.sched.Register(alert.ID, alert.EvaluationInterval)
		})
	if err != nil {
		return fmt.Errorf("%w: alert %s: %v", models.ErrScheduler, alert.ID, err)
	}
	return nil
}

func validateCreateRequest(req *models.CreateAlertRequest) error {
	if req.Name == "" {
		return fmt.Errorf("%w: name is required", models.ErrValidation)
	}
	if !req.ScopeKind.IsValid() {
		return fmt.Errorf("%w: unknown scope kind %q", models.ErrValidation, req.ScopeKind)
	}
	if req.EvaluationPeriod <= 0 {
		return fmt.Errorf("%w: evaluation period must be positive", models.ErrValidation)
	}
	if req.EvaluationInterval <= 0 {
		return fmt.Errorf("%w: evaluation interval must be positive", models.ErrValidation)
	}
	if len(req.Scopes) == 0 {
		return fmt.Errorf("%w: at least one scope is required", models.ErrValidation)
	}
	if err := validateConditions(req.Conditions); err != nil {
		return err
	}
	for _, spec := range req.Scopes {
		if spec.Name == "" {
			return fmt.Errorf("%w: scope name is required", models.ErrValidation)
		}
		if err := validateConditions(spec.Conditions); err != nil {
			return err
		}
		if len(spec.Conditions) == 0 && len(req.Conditions) == 0 {
			return fmt.Errorf("%w: scope %q has no conditions and no alert-level conditions exist",
				models.ErrValidation, spec.Name)
		}
	}
	return validateExpression(req.ConditionExpression)
}

func validateConditions(conditions []models.ConditionSpec) error {
	for _, cond := range conditions {
		if cond.Alias == "" {
			return fmt.Errorf("%w: condition alias is required", models.ErrValidation)
		}
		if cond.Metric == "" {
			return fmt.Errorf("%w: condition %q has no metric", models.ErrValidation, cond.Alias)
		}
		if _, ok := operators.Lookup(cond.Operator); !ok {
			return fmt.Errorf("%w: condition %q has unknown operator %q",
				models.ErrValidation, cond.Alias, cond.Operator)
		}
		if _, err := cond.Threshold.Float64(); err != nil {
			return fmt.Errorf("%w: condition %q has non-numeric threshold %q",
				models.ErrValidation, cond.Alias, cond.Threshold.String())
		}
	}
	return nil
}

// validateExpression parses the boolean expression with every variable
// false. A parse error here is a validation error; evaluation-time errors
// are handled separately.
func validateExpression(expression string) error {
	if _, err := expr.Evaluate(expression, nil); err != nil {
		return fmt.Errorf("%w: invalid condition expression: %v", models.ErrValidation, err)
	}
	return nil
}
