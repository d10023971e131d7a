package models

import (
	"time"

	"gorm.io/gorm"
)

// PushSubscription stores a user's web-push subscription payload as
// returned by the browser's PushManager (endpoint plus crypto keys).
type PushSubscription struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Subscription string    `gorm:"type:jsonb;not null" json:"subscription"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MigrateNotificationModels runs database migrations for notification models
func MigrateNotificationModels(db *gorm.DB) error {
	return db.AutoMigrate(&PushSubscription{})
}
