package controllers

import (
	"errors"
	"net/http"

	"finz_backend/middleware"
	"finz_backend/services"

	"github.com/gin-gonic/gin"
)

// RsiController handles RSI watches and cached readings
type RsiController struct {
	rsi *services.RsiService
}

// NewRsiController creates a new RSI controller
func NewRsiController(rsi *services.RsiService) *RsiController {
	return &RsiController{rsi: rsi}
}

// followRequest is the watch payload
type followRequest struct {
	Ticker string `json:"ticker" binding:"required"`
}

// Follow adds a ticker to the user's RSI watches
// POST /api/v1/rsi/watches
func (rc *RsiController) Follow(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req followRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	watch, err := rc.rsi.Follow(userID, req.Ticker)
	if errors.Is(err, services.ErrAlreadyWatching) {
		c.JSON(http.StatusConflict, gin.H{"error": "Ticker already watched"})
		return
	}
	if errors.Is(err, services.ErrInvalidTicker) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save watch"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"watch": watch})
}

// Unfollow removes a ticker from the user's RSI watches
// DELETE /api/v1/rsi/watches/:ticker
func (rc *RsiController) Unfollow(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	err = rc.rsi.Unfollow(userID, c.Param("ticker"))
	if errors.Is(err, services.ErrNotWatching) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticker not watched"})
		return
	}
	if errors.Is(err, services.ErrInvalidTicker) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove watch"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

// ListWatches returns the user's RSI watches
// GET /api/v1/rsi/watches
func (rc *RsiController) ListWatches(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	watches, err := rc.rsi.ListWatches(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load watches"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"watches": watches})
}

// GetStatus returns the latest stored RSI reading for a ticker.
// Reads never hit the upstream provider; only the scheduled poller
// spends the daily budget.
// GET /api/v1/rsi/:ticker
func (rc *RsiController) GetStatus(c *gin.Context) {
	status, err := rc.rsi.LatestStatus(c.Param("ticker"), services.RsiFreshnessWindow)
	if errors.Is(err, services.ErrInvalidTicker) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load RSI"})
		return
	}
	c.JSON(http.StatusOK, status)
}
