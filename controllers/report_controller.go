package controllers

import (
	"net/http"

	"finz_backend/services"

	"github.com/gin-gonic/gin"
)

// ReportController serves weekly market reports
type ReportController struct {
	reports *services.ReportService
}

// NewReportController creates a new report controller
func NewReportController(reports *services.ReportService) *ReportController {
	return &ReportController{reports: reports}
}

// List returns all stored reports, newest first
// GET /api/v1/reports
func (rc *ReportController) List(c *gin.Context) {
	reports, err := rc.reports.ListReports()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load reports"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// Latest returns the newest report
// GET /api/v1/reports/latest
func (rc *ReportController) Latest(c *gin.Context) {
	report, err := rc.reports.LatestReport()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load report"})
		return
	}
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No reports generated yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// Generate creates a report outside the weekly schedule
// POST /api/v1/reports/generate
func (rc *ReportController) Generate(c *gin.Context) {
	report, err := rc.reports.GenerateAndStore()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Report generation failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"report": report})
}
