package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"finz_backend/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ReportService generates and stores weekly market reports
type ReportService struct {
	db     *gorm.DB
	weekly *WeeklyDataService
	groq   *GroqService
}

// Global report service instance
var GlobalReportService *ReportService

// InitReportService initializes the report service
func InitReportService(db *gorm.DB, weekly *WeeklyDataService, groq *GroqService) error {
	GlobalReportService = NewReportService(db, weekly, groq)
	log.Info().Msg("Report service initialized")
	return nil
}

// NewReportService creates a report service
func NewReportService(db *gorm.DB, weekly *WeeklyDataService, groq *GroqService) *ReportService {
	return &ReportService{db: db, weekly: weekly, groq: groq}
}

// GenerateAndStore collects the week's moves, writes the summary and
// persists the report. The covered week is the seven days ending now.
func (s *ReportService) GenerateAndStore() (*models.WeeklyReport, error) {
	data := s.weekly.CollectWeeklyData()
	if len(data.Indices) == 0 && len(data.Sectors) == 0 {
		return nil, fmt.Errorf("no market data collected for weekly report")
	}

	summary, err := s.groq.GenerateWeeklySummary(data)
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}

	indicesJSON, err := json.Marshal(map[string]interface{}{
		"indices": data.Indices,
		"sectors": data.Sectors,
	})
	if err != nil {
		return nil, err
	}

	endDate := data.GeneratedAt
	report := models.WeeklyReport{
		StartDate:   endDate.AddDate(0, 0, -7),
		EndDate:     endDate,
		Summary:     summary,
		IndicesJSON: string(indicesJSON),
	}
	if err := s.db.Create(&report).Error; err != nil {
		return nil, err
	}

	log.Info().Uint("report_id", report.ID).
		Time("start", report.StartDate).Time("end", report.EndDate).
		Msg("weekly report stored")
	return &report, nil
}

// ListReports returns all reports, newest first
func (s *ReportService) ListReports() ([]models.WeeklyReport, error) {
	var reports []models.WeeklyReport
	err := s.db.Order("created_at DESC").Find(&reports).Error
	return reports, err
}

// LatestReport returns the newest report, or nil when none exists yet
func (s *ReportService) LatestReport() (*models.WeeklyReport, error) {
	var report models.WeeklyReport
	err := s.db.Order("created_at DESC").First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// PruneOlderThan removes reports generated before the cutoff
func (s *ReportService) PruneOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.WeeklyReport{})
	return result.RowsAffected, result.Error
}
