package models

import (
	"errors"
)

// Error taxonomy for the engine. Callers use errors.Is against these
// sentinels; concrete errors wrap them with context via fmt.Errorf and %w.
var (
	// ErrValidation marks a bad alert or snooze parameter, rejected before
	// anything is persisted.
	ErrValidation = errors.New("validation failed")

	// ErrAlertNotFound marks a lookup for an alert that does not exist or
	// was deleted.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrScopeNotFound marks a lookup for a scope that does not exist
	ErrScopeNotFound = errors.New("scope not found")

	// ErrRepository marks a persistence failure
	ErrRepository = errors.New("repository error")

	// ErrQueryExecution marks a telemetry-store failure or timeout. Inside
	// an evaluation run it degrades the cycle's scopes to ERRORED.
	ErrQueryExecution = errors.New("metric query execution failed")

	// ErrExpressionParse marks a malformed condition expression
	ErrExpressionParse = errors.New("expression parse error")

	// ErrScheduler marks an external schedule registration, update or
	// removal failure. It is reported to the alert-management caller but
	// never blocks alert persistence.
	ErrScheduler = errors.New("scheduler registration failed")

	// ErrInvalidSnoozeWindow marks a snooze request whose window is empty
	// or inverted.
	ErrInvalidSnoozeWindow = errors.New("invalid snooze window")
)
