package models

import (
	"time"

	"gorm.io/gorm"
)

// WeeklyReport is a generated market summary for one week
type WeeklyReport struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	StartDate   time.Time `gorm:"not null" json:"start_date"`
	EndDate     time.Time `gorm:"not null" json:"end_date"`
	Summary     string    `gorm:"type:text" json:"summary"`
	IndicesJSON string    `gorm:"type:jsonb" json:"indices_json"`
	CreatedAt   time.Time `json:"created_at"`
}

// MigrateReportModels runs database migrations for report models
func MigrateReportModels(db *gorm.DB) error {
	return db.AutoMigrate(&WeeklyReport{})
}
