package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pulseapm/alert-engine/pkg/models"
	"github.com/pulseapm/alert-engine/pkg/serializer"
	"github.com/pulseapm/alert-engine/pkg/telemetry"
)

// Stream names for persistent storage
const (
	AlertStreamName   = "apm_alerts"
	ScopeStreamName   = "apm_alert_scopes"
	HistoryStreamName = "apm_evaluation_history"
)

// TimeplusRepository persists alerts, scopes and history in mutable streams.
// Alert and scope reads always take the latest row per primary key; alerts
// are soft-deleted via the active flag.
type TimeplusRepository struct {
	client telemetry.StoreClient
	ser    serializer.Serializer
}

// NewTimeplusRepository creates the repository and ensures its streams exist
func NewTimeplusRepository(ctx context.Context, client telemetry.StoreClient, ser serializer.Serializer) (*TimeplusRepository, error) {
	repo := &TimeplusRepository{client: client, ser: ser}
	if err := repo.ensureStreams(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure storage streams: %w", err)
	}
	return repo, nil
}

// Ensure TimeplusRepository implements Repository
var _ Repository = (*TimeplusRepository)(nil)

type column struct {
	name     string
	typ      string
	nullable bool
}

func (r *TimeplusRepository) ensureStreams(ctx context.Context) error {
	if err := r.ensureMutableStream(ctx, AlertStreamName, []column{
		{name: "id", typ: "string"},
		{name: "name", typ: "string"},
		{name: "scope_kind", typ: "string"},
		{name: "dimension_filter", typ: "string"},
		{name: "condition_expression", typ: "string"},
		{name: "evaluation_period", typ: "int32"},
		{name: "evaluation_interval", typ: "int32"},
		{name: "severity", typ: "string"},
		{name: "notification_channel", typ: "string"},
		{name: "snoozed_from", typ: "datetime64", nullable: true},
		{name: "snoozed_until", typ: "datetime64", nullable: true},
		{name: "created_at", typ: "datetime64"},
		{name: "updated_at", typ: "datetime64"},
		{name: "active", typ: "bool"},
	}, []string{"id"}); err != nil {
		return err
	}

	if err := r.ensureMutableStream(ctx, ScopeStreamName, []column{
		{name: "id", typ: "string"},
		{name: "alert_id", typ: "string"},
		{name: "name", typ: "string"},
		{name: "conditions", typ: "string"},
		{name: "state", typ: "string"},
		{name: "created_at", typ: "datetime64"},
		{name: "updated_at", typ: "datetime64"},
	}, []string{"id"}); err != nil {
		return err
	}

	// History is append-only, a plain stream is enough
	exists, err := r.client.StreamExists(ctx, HistoryStreamName)
	if err != nil {
		return err
	}
	if !exists {
		logrus.Infof("Creating history stream: %s", HistoryStreamName)
		ddl := fmt.Sprintf("CREATE STREAM IF NOT EXISTS `%s` (`id` string, `scope_id` string, `result` string, `state` string, `evaluated_at` datetime64)",
			HistoryStreamName)
		if err := r.client.ExecuteDDL(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create history stream %s: %w", HistoryStreamName, err)
		}
	}
	return nil
}

func (r *TimeplusRepository) ensureMutableStream(ctx context.Context, name string, schema []column, primaryKeys []string) error {
	exists, err := r.client.StreamExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		logrus.Debugf("Mutable stream '%s' exists", name)
		return nil
	}

	logrus.Infof("Creating mutable stream: %s", name)
	columnsStr := ""
	for i, col := range schema {
		if i > 0 {
			columnsStr += ", "
		}
		nullableStr := ""
		if col.nullable {
			nullableStr = " NULL"
		}
		columnsStr += fmt.Sprintf("`%s` %s%s", col.name, col.typ, nullableStr)
	}
	ddl := fmt.Sprintf("CREATE MUTABLE STREAM `%s` (%s) PRIMARY KEY (%s)",
		name, columnsStr, strings.Join(primaryKeys, ", "))
	if err := r.client.ExecuteDDL(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create mutable stream %s: %w", name, err)
	}
	return nil
}

// CreateAlert persists a new alert
func (r *TimeplusRepository) CreateAlert(ctx context.Context, alert *models.Alert) error {
	return r.persistAlert(ctx, alert, true)
}

// UpdateAlert persists an updated alert
func (r *TimeplusRepository) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	return r.persistAlert(ctx, alert, true)
}

// DeleteAlert soft-deletes an alert by writing an inactive row
func (r *TimeplusRepository) DeleteAlert(ctx context.Context, id string) error {
	alert, err := r.GetAlertDetails(ctx, id)
	if err != nil {
		return err
	}
	alert.UpdatedAt = time.Now().UTC()
	return r.persistAlert(ctx, alert, false)
}

func (r *TimeplusRepository) persistAlert(ctx context.Context, alert *models.Alert, active bool) error {
	var snoozedFrom, snoozedUntil interface{}
	if alert.SnoozedFrom != nil {
		snoozedFrom = *alert.SnoozedFrom
	}
	if alert.SnoozedUntil != nil {
		snoozedUntil = *alert.SnoozedUntil
	}

	columns := []string{
		"id", "name", "scope_kind", "dimension_filter", "condition_expression",
		"evaluation_period", "evaluation_interval", "severity", "notification_channel",
		"snoozed_from", "snoozed_until", "created_at", "updated_at", "active",
	}
	values := []interface{}{
		alert.ID,
		alert.Name,
		string(alert.ScopeKind),
		alert.DimensionFilter.Raw,
		alert.ConditionExpression,
		alert.EvaluationPeriod,
		alert.EvaluationInterval,
		string(alert.Severity),
		alert.NotificationChannel,
		snoozedFrom,
		snoozedUntil,
		alert.CreatedAt,
		alert.UpdatedAt,
		active,
	}

	if err := r.client.InsertIntoStream(ctx, AlertStreamName, columns, values); err != nil {
		return fmt.Errorf("%w: failed to persist alert %s: %v", models.ErrRepository, alert.ID, err)
	}
	return nil
}

const alertSelectColumns = `id, name, scope_kind, dimension_filter, condition_expression,
	       evaluation_period, evaluation_interval, severity, notification_channel,
	       snoozed_from, snoozed_until, created_at, updated_at`

// GetAlertDetails returns the latest active version of an alert
func (r *TimeplusRepository) GetAlertDetails(ctx context.Context, id string) (*models.Alert, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM (
			SELECT *, row_number() OVER (PARTITION BY id ORDER BY _tp_time DESC) as row_num
			FROM table(%s)
			WHERE id = '%s'
		) WHERE row_num = 1 AND active = true
	`, alertSelectColumns, AlertStreamName, escapeSQL(id))

	results, err := r.client.ExecuteQuery(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query alert: %v", models.ErrRepository, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrAlertNotFound, id)
	}
	return r.mapToAlert(results[0]), nil
}

// ListAlerts returns all active alerts
func (r *TimeplusRepository) ListAlerts(ctx context.Context) ([]*models.Alert, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM (
			SELECT *, row_number() OVER (PARTITION BY id ORDER BY _tp_time DESC) as row_num
			FROM table(%s)
		) WHERE row_num = 1 AND active = true
	`, alertSelectColumns, AlertStreamName)

	results, err := r.client.ExecuteQuery(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query alerts: %v", models.ErrRepository, err)
	}
	alerts := make([]*models.Alert, 0, len(results))
	for _, result := range results {
		alerts = append(alerts, r.mapToAlert(result))
	}
	return alerts, nil
}

func (r *TimeplusRepository) mapToAlert(data map[string]interface{}) *models.Alert {
	alert := &models.Alert{
		ID:                  getString(data, "id"),
		Name:                getString(data, "name"),
		ScopeKind:           models.ScopeKind(getString(data, "scope_kind")),
		DimensionFilter:     models.DimensionFilter{Raw: getString(data, "dimension_filter")},
		ConditionExpression: getString(data, "condition_expression"),
		EvaluationPeriod:    getInt(data, "evaluation_period"),
		EvaluationInterval:  getInt(data, "evaluation_interval"),
		Severity:            models.AlertSeverity(getString(data, "severity")),
		NotificationChannel: getString(data, "notification_channel"),
		CreatedAt:           getTime(data, "created_at"),
		UpdatedAt:           getTime(data, "updated_at"),
	}
	alert.SnoozedFrom = getTimePtr(data, "snoozed_from")
	alert.SnoozedUntil = getTimePtr(data, "snoozed_until")
	return alert
}

// CreateScopes persists the scopes fanned out at alert-creation time
func (r *TimeplusRepository) CreateScopes(ctx context.Context, scopes []*models.Scope) error {
	for _, scope := range scopes {
		if err := r.persistScope(ctx, scope); err != nil {
			return err
		}
	}
	return nil
}

func (r *TimeplusRepository) persistScope(ctx context.Context, scope *models.Scope) error {
	conditions, err := r.ser.Marshal(scope.Conditions)
	if err != nil {
		return fmt.Errorf("%w: failed to serialize conditions for scope %s: %v", models.ErrRepository, scope.ID, err)
	}

	columns := []string{"id", "alert_id", "name", "conditions", "state", "created_at", "updated_at"}
	values := []interface{}{
		scope.ID,
		scope.AlertID,
		scope.Name,
		string(conditions),
		string(scope.State),
		scope.CreatedAt,
		scope.UpdatedAt,
	}
	if err := r.client.InsertIntoStream(ctx, ScopeStreamName, columns, values); err != nil {
		return fmt.Errorf("%w: failed to persist scope %s: %v", models.ErrRepository, scope.ID, err)
	}
	return nil
}

const scopeSelectColumns = "id, alert_id, name, conditions, state, created_at, updated_at"

// GetAlertScopes returns all scopes owned by an alert
func (r *TimeplusRepository) GetAlertScopes(ctx context.Context, alertID string) ([]*models.Scope, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM (
			SELECT *, row_number() OVER (PARTITION BY id ORDER BY _tp_time DESC) as row_num
			FROM table(%s)
			WHERE alert_id = '%s'
		) WHERE row_num = 1
	`, scopeSelectColumns, ScopeStreamName, escapeSQL(alertID))

	results, err := r.client.ExecuteQuery(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query scopes: %v", models.ErrRepository, err)
	}
	scopes := make([]*models.Scope, 0, len(results))
	for _, result := range results {
		scopes = append(scopes, r.mapToScope(result))
	}
	return scopes, nil
}

// GetScope returns a single scope by id
func (r *TimeplusRepository) GetScope(ctx context.Context, scopeID string) (*models.Scope, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM (
			SELECT *, row_number() OVER (PARTITION BY id ORDER BY _tp_time DESC) as row_num
			FROM table(%s)
			WHERE id = '%s'
		) WHERE row_num = 1
	`, scopeSelectColumns, ScopeStreamName, escapeSQL(scopeID))

	results, err := r.client.ExecuteQuery(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query scope: %v", models.ErrRepository, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrScopeNotFound, scopeID)
	}
	return r.mapToScope(results[0]), nil
}

// GetScopeState returns the persisted state of a scope
func (r *TimeplusRepository) GetScopeState(ctx context.Context, scopeID string) (models.AlertState, error) {
	scope, err := r.GetScope(ctx, scopeID)
	if err != nil {
		return "", err
	}
	return scope.State, nil
}

// UpdateScopeState writes the scope row back with the new state. Last write
// wins; overlapping cycles for the same alert are accepted without locking.
func (r *TimeplusRepository) UpdateScopeState(ctx context.Context, scopeID string, state models.AlertState) (bool, error) {
	scope, err := r.GetScope(ctx, scopeID)
	if err != nil {
		return false, err
	}
	scope.State = state
	scope.UpdatedAt = time.Now().UTC()
	if err := r.persistScope(ctx, scope); err != nil {
		return false, err
	}
	return true, nil
}

func (r *TimeplusRepository) mapToScope(data map[string]interface{}) *models.Scope {
	scope := &models.Scope{
		ID:        getString(data, "id"),
		AlertID:   getString(data, "alert_id"),
		Name:      getString(data, "name"),
		State:     models.AlertState(getString(data, "state")),
		CreatedAt: getTime(data, "created_at"),
		UpdatedAt: getTime(data, "updated_at"),
	}
	raw := getString(data, "conditions")
	if raw != "" {
		if err := r.ser.Unmarshal([]byte(raw), &scope.Conditions); err != nil {
			logrus.Warnf("Scope %s has unparseable conditions: %v", scope.ID, err)
		}
	}
	return scope
}

// CreateEvaluationHistory appends one history entry for a scope
func (r *TimeplusRepository) CreateEvaluationHistory(ctx context.Context, scopeID string, resultJSON string, state models.AlertState) (bool, error) {
	columns := []string{"id", "scope_id", "result", "state", "evaluated_at"}
	values := []interface{}{
		uuid.New().String(),
		scopeID,
		resultJSON,
		string(state),
		time.Now().UTC(),
	}
	if err := r.client.InsertIntoStream(ctx, HistoryStreamName, columns, values); err != nil {
		return false, fmt.Errorf("%w: failed to append history for scope %s: %v", models.ErrRepository, scopeID, err)
	}
	return true, nil
}

// ListEvaluationHistory returns the most recent history entries for a scope
func (r *TimeplusRepository) ListEvaluationHistory(ctx context.Context, scopeID string, limit int) ([]*models.EvaluationHistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := fmt.Sprintf(`
		SELECT id, scope_id, result, state, evaluated_at
		FROM table(%s)
		WHERE scope_id = '%s'
		ORDER BY evaluated_at DESC
		LIMIT %d
	`, HistoryStreamName, escapeSQL(scopeID), limit)

	results, err := r.client.ExecuteQuery(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query history: %v", models.ErrRepository, err)
	}
	entries := make([]*models.EvaluationHistoryEntry, 0, len(results))
	for _, result := range results {
		entries = append(entries, &models.EvaluationHistoryEntry{
			ID:          getString(result, "id"),
			ScopeID:     getString(result, "scope_id"),
			Result:      getString(result, "result"),
			State:       models.AlertState(getString(result, "state")),
			EvaluatedAt: getTime(result, "evaluated_at"),
		})
	}
	return entries, nil
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
