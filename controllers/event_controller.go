package controllers

import (
	"net/http"

	"finz_backend/middleware"
	"finz_backend/services"

	"github.com/gin-gonic/gin"
)

// EventController serves the economic calendar
type EventController struct {
	events *services.EventService
}

// NewEventController creates a new event controller
func NewEventController(events *services.EventService) *EventController {
	return &EventController{events: events}
}

// List returns the next week's events for the user: macro events plus
// earnings on the tickers the user has alerts on.
// GET /api/v1/events
func (ec *EventController) List(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	events, err := ec.events.EventsForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load events"})
		return
	}
	c.JSON(http.StatusOK, events)
}

// Sync triggers an earnings calendar sync outside the schedule
// POST /api/v1/events/sync
func (ec *EventController) Sync(c *gin.Context) {
	created, err := ec.events.SyncEarnings()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sync failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created})
}
