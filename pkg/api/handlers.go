package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pulseapm/alert-engine/pkg/models"
	"github.com/pulseapm/alert-engine/pkg/services"
)

// APIHandler handles HTTP API requests
type APIHandler struct {
	alertService *services.AlertService
	orchestrator *services.Orchestrator
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(alertService *services.AlertService, orchestrator *services.Orchestrator) *APIHandler {
	return &APIHandler{
		alertService: alertService,
		orchestrator: orchestrator,
	}
}

// CreateAlert creates a new alert with its scopes
func (h *APIHandler) CreateAlert(c echo.Context) error {
	var req models.CreateAlertRequest
	if err := c.Bind(&req); err != nil {
		logrus.Errorf("Error binding create alert request: %v", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
	}

	alert, err := h.alertService.CreateAlert(c.Request().Context(), &req)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		if errors.Is(err, models.ErrScheduler) && alert != nil {
			// The alert is persisted, only the periodic schedule is missing
			logrus.Errorf("Alert %s created but scheduling failed: %v", alert.ID, err)
			return c.JSON(http.StatusCreated, map[string]interface{}{
				"alert":   alert,
				"warning": "alert created but periodic evaluation could not be scheduled",
			})
		}
		logrus.Errorf("Error creating alert: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("Failed to create alert: %v", err)})
	}

	return c.JSON(http.StatusCreated, alert)
}

// GetAlerts returns all alerts
func (h *APIHandler) GetAlerts(c echo.Context) error {
	alerts, err := h.alertService.ListAlerts(c.Request().Context())
	if err != nil {
		logrus.Errorf("Error listing alerts: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list alerts"})
	}
	return c.JSON(http.StatusOK, alerts)
}

// GetAlert returns an alert by ID
func (h *APIHandler) GetAlert(c echo.Context) error {
	id := c.Param("id")
	alert, err := h.alertService.GetAlert(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrAlertNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Alert with ID %s not found", id)})
		}
		logrus.Errorf("Error getting alert %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get alert"})
	}
	return c.JSON(http.StatusOK, alert)
}

// UpdateAlert updates an alert
func (h *APIHandler) UpdateAlert(c echo.Context) error {
	id := c.Param("id")
	var req models.UpdateAlertRequest
	if err := c.Bind(&req); err != nil {
		logrus.Errorf("Error binding update alert request: %v", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
	}

	alert, err := h.alertService.UpdateAlert(c.Request().Context(), id, &req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAlertNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Alert with ID %s not found", id)})
		case errors.Is(err, models.ErrValidation):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			logrus.Errorf("Error updating alert %s: %v", id, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("Failed to update alert: %v", err)})
		}
	}

	return c.JSON(http.StatusOK, alert)
}

// DeleteAlert deletes an alert
func (h *APIHandler) DeleteAlert(c echo.Context) error {
	id := c.Param("id")
	if err := h.alertService.DeleteAlert(c.Request().Context(), id); err != nil {
		if errors.Is(err, models.ErrAlertNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Alert with ID %s not found", id)})
		}
		logrus.Errorf("Error deleting alert %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("Failed to delete alert: %v", err)})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Alert deleted successfully"})
}

// SnoozeAlert sets the alert's snooze window
func (h *APIHandler) SnoozeAlert(c echo.Context) error {
	id := c.Param("id")
	var req models.SnoozeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
	}

	alert, err := h.alertService.SnoozeAlert(c.Request().Context(), id, req.From, req.Until)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAlertNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Alert with ID %s not found", id)})
		case errors.Is(err, models.ErrInvalidSnoozeWindow):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			logrus.Errorf("Error snoozing alert %s: %v", id, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to snooze alert"})
		}
	}
	return c.JSON(http.StatusOK, alert)
}

// UnsnoozeAlert clears the alert's snooze window
func (h *APIHandler) UnsnoozeAlert(c echo.Context) error {
	id := c.Param("id")
	alert, err := h.alertService.UnsnoozeAlert(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrAlertNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Alert with ID %s not found", id)})
		}
		logrus.Errorf("Error unsnoozing alert %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to unsnooze alert"})
	}
	return c.JSON(http.StatusOK, alert)
}

// EvaluateAlert triggers one asynchronous evaluation run and returns the
// acknowledgement immediately
func (h *APIHandler) EvaluateAlert(c echo.Context) error {
	id := c.Param("id")
	ack, err := h.orchestrator.EvaluateAlert(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrAlertNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Alert with ID %s not found", id)})
		}
		logrus.Errorf("Error triggering evaluation for alert %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to trigger evaluation"})
	}
	return c.JSON(http.StatusAccepted, ack)
}

// GetAlertScopes returns the scopes of an alert
func (h *APIHandler) GetAlertScopes(c echo.Context) error {
	id := c.Param("id")
	scopes, err := h.alertService.GetAlertScopes(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrAlertNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Alert with ID %s not found", id)})
		}
		logrus.Errorf("Error getting scopes of alert %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get alert scopes"})
	}
	return c.JSON(http.StatusOK, scopes)
}

// GetScopeHistory returns the recent evaluation history of a scope
func (h *APIHandler) GetScopeHistory(c echo.Context) error {
	id := c.Param("id")
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid limit parameter"})
		}
		limit = parsed
	}

	history, err := h.alertService.GetScopeHistory(c.Request().Context(), id, limit)
	if err != nil {
		if errors.Is(err, models.ErrScopeNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Scope with ID %s not found", id)})
		}
		logrus.Errorf("Error getting history of scope %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get scope history"})
	}
	return c.JSON(http.StatusOK, history)
}

// Healthz reports liveness
func (h *APIHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// SetupRoutes sets up the API routes
func (h *APIHandler) SetupRoutes(e *echo.Echo) {
	e.POST("/api/alerts", h.CreateAlert)
	e.GET("/api/alerts", h.GetAlerts)
	e.GET("/api/alerts/:id", h.GetAlert)
	e.PUT("/api/alerts/:id", h.UpdateAlert)
	e.DELETE("/api/alerts/:id", h.DeleteAlert)

	e.POST("/api/alerts/:id/snooze", h.SnoozeAlert)
	e.DELETE("/api/alerts/:id/snooze", h.UnsnoozeAlert)
	e.POST("/api/alerts/:id/evaluate", h.EvaluateAlert)
	e.GET("/api/alerts/:id/scopes", h.GetAlertScopes)
	e.GET("/api/scopes/:id/history", h.GetScopeHistory)

	e.GET("/healthz", h.Healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
