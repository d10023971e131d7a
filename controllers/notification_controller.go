package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"finz_backend/middleware"
	"finz_backend/services"

	"github.com/gin-gonic/gin"
)

// NotificationController handles web-push subscription management
type NotificationController struct {
	push *services.PushService
}

// NewNotificationController creates a new notification controller
func NewNotificationController(push *services.PushService) *NotificationController {
	return &NotificationController{push: push}
}

// subscribeRequest carries the browser's PushManager subscription
type subscribeRequest struct {
	Subscription json.RawMessage `json:"subscription" binding:"required"`
}

// VAPIDKey returns the public key clients subscribe with
// GET /api/v1/notifications/vapid-key
func (nc *NotificationController) VAPIDKey(c *gin.Context) {
	key := nc.push.PublicKey()
	if key == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push notifications not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": key})
}

// Subscribe stores or replaces the user's push subscription
// POST /api/v1/notifications/subscribe
func (nc *NotificationController) Subscribe(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if err := nc.push.SaveSubscription(userID, req.Subscription); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"subscribed": true})
}

// Unsubscribe removes the user's push subscription
// DELETE /api/v1/notifications/subscribe
func (nc *NotificationController) Unsubscribe(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	err = nc.push.DeleteSubscription(userID)
	if errors.Is(err, services.ErrNoSubscription) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No subscription registered"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unsubscribed": true})
}

// SendTest delivers a test notification to the caller
// POST /api/v1/notifications/test
func (nc *NotificationController) SendTest(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	err = nc.push.Send(userID, "Test notification", "Push notifications are working")
	if errors.Is(err, services.ErrNoSubscription) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No subscription registered"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Delivery failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}
