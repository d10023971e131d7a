package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"finz_backend/middleware"
	"finz_backend/models"
	"finz_backend/services"
	"finz_backend/services/alerts"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AlertController handles alert CRUD and manual evaluation
type AlertController struct {
	alerts *alerts.Service
	stream *services.StreamService
}

// NewAlertController creates a new alert controller
func NewAlertController(alertSvc *alerts.Service, stream *services.StreamService) *AlertController {
	return &AlertController{alerts: alertSvc, stream: stream}
}

// simpleAlertRequest is the threshold alert payload
type simpleAlertRequest struct {
	Ticker     string          `json:"ticker" binding:"required"`
	Field      string          `json:"field" binding:"required"`
	Comparator string          `json:"comparator" binding:"required"`
	Value      decimal.Decimal `json:"value" binding:"required"`
}

// rangeAlertRequest is the band alert payload
type rangeAlertRequest struct {
	Ticker   string          `json:"ticker" binding:"required"`
	Field    string          `json:"field" binding:"required"`
	MinValue decimal.Decimal `json:"min_value" binding:"required"`
	MaxValue decimal.Decimal `json:"max_value" binding:"required"`
}

// percentAlertRequest is the percent-move alert payload
type percentAlertRequest struct {
	Ticker        string          `json:"ticker" binding:"required"`
	Field         string          `json:"field" binding:"required"`
	PercentChange decimal.Decimal `json:"percent_change" binding:"required"`
	Window        string          `json:"window"`
}

// compositeConditionRequest is one clause of a composite alert
type compositeConditionRequest struct {
	Field      string          `json:"field" binding:"required"`
	Comparator string          `json:"comparator" binding:"required"`
	Value      decimal.Decimal `json:"value" binding:"required"`
}

// compositeAlertRequest is the composite alert payload
type compositeAlertRequest struct {
	Ticker     string                      `json:"ticker" binding:"required"`
	Operator   string                      `json:"operator" binding:"required"`
	Conditions []compositeConditionRequest `json:"conditions" binding:"required"`
}

// CreateSimple creates a threshold alert
// POST /api/v1/alerts/simple
func (ac *AlertController) CreateSimple(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req simpleAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	alert, err := ac.alerts.CreateSimple(userID, req.Ticker,
		models.AlertField(req.Field), models.Comparator(req.Comparator), req.Value)
	if err != nil {
		ac.writeCreateError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"alert": alert, "kind": models.KindSimple})
}

// CreateRange creates a band alert
// POST /api/v1/alerts/range
func (ac *AlertController) CreateRange(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req rangeAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	alert, err := ac.alerts.CreateRange(userID, req.Ticker,
		models.AlertField(req.Field), req.MinValue, req.MaxValue)
	if err != nil {
		ac.writeCreateError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"alert": alert, "kind": models.KindRange})
}

// CreatePercent creates a percent-move alert. The current market value
// is captured as the reference, so this fails with 503 when the quote
// is unavailable.
// POST /api/v1/alerts/percent
func (ac *AlertController) CreatePercent(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req percentAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	alert, err := ac.alerts.CreatePercent(userID, req.Ticker,
		models.AlertField(req.Field), req.PercentChange, req.Window)
	if err != nil {
		ac.writeCreateError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"alert": alert, "kind": models.KindPercent})
}

// CreateComposite creates a multi-condition alert
// POST /api/v1/alerts/composite
func (ac *AlertController) CreateComposite(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req compositeAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	conditions := make([]alerts.ConditionInput, 0, len(req.Conditions))
	for _, cond := range req.Conditions {
		conditions = append(conditions, alerts.ConditionInput{
			Field:      models.AlertField(cond.Field),
			Comparator: models.Comparator(cond.Comparator),
			Value:      cond.Value,
		})
	}

	alert, err := ac.alerts.CreateComposite(userID, req.Ticker,
		models.LogicalOperator(req.Operator), conditions)
	if err != nil {
		ac.writeCreateError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"alert": alert, "kind": models.KindComposite})
}

// List returns the user's alerts grouped by kind
// GET /api/v1/alerts
func (ac *AlertController) List(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	grouped, err := ac.alerts.ListForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load alerts"})
		return
	}
	c.JSON(http.StatusOK, grouped)
}

// Deactivate disables an alert
// POST /api/v1/alerts/:id/deactivate
func (ac *AlertController) Deactivate(c *gin.Context) {
	ac.applyAcrossKinds(c, ac.alerts.Deactivate)
}

// Activate re-enables an alert
// POST /api/v1/alerts/:id/activate
func (ac *AlertController) Activate(c *gin.Context) {
	ac.applyAcrossKinds(c, ac.alerts.Activate)
}

// Delete removes an alert
// DELETE /api/v1/alerts/:id
func (ac *AlertController) Delete(c *gin.Context) {
	ac.applyAcrossKinds(c, ac.alerts.Delete)
}

// Evaluate runs one evaluation cycle for the user right now
// POST /api/v1/alerts/evaluate
func (ac *AlertController) Evaluate(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	result, err := ac.alerts.EvaluateUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Evaluation failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Stream upgrades to a WebSocket that receives alert events
// GET /api/v1/alerts/stream
func (ac *AlertController) Stream(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	ac.stream.HandleWebSocket(c.Writer, c.Request, userID)
}

// applyAcrossKinds runs an id-scoped operation shared by the state
// endpoints.
func (ac *AlertController) applyAcrossKinds(c *gin.Context, op func(userID, alertID uint) (models.AlertKind, error)) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert id"})
		return
	}

	kind, err := op(userID, uint(id))
	if errors.Is(err, alerts.ErrAlertNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Operation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "kind": kind})
}

// writeCreateError maps creation errors to HTTP statuses
func (ac *AlertController) writeCreateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Market data unavailable, try again later"})
	case errors.Is(err, services.ErrInvalidTicker),
		errors.Is(err, alerts.ErrInvalidField),
		errors.Is(err, alerts.ErrInvalidComparator),
		errors.Is(err, alerts.ErrInvalidOperator),
		errors.Is(err, alerts.ErrInvalidRange),
		errors.Is(err, alerts.ErrZeroPercent),
		errors.Is(err, alerts.ErrTooFewConditions):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create alert"})
	}
}
