package models

import (
	"time"

	"gorm.io/gorm"
)

// EventImpact classifies how market-moving an economic event is
type EventImpact string

const (
	ImpactHigh   EventImpact = "high"
	ImpactMedium EventImpact = "medium"
	ImpactLow    EventImpact = "low"
)

// EventType classifies the economic event
type EventType string

const (
	EventFOMC     EventType = "fomc"
	EventEarnings EventType = "earnings"
	EventOther    EventType = "other"
)

// EconomicEvent is a calendar entry synced from the upstream provider.
// Macro events carry an empty ticker.
type EconomicEvent struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Date        time.Time   `gorm:"index;not null" json:"date"`
	Ticker      string      `gorm:"type:varchar(10)" json:"ticker"`
	Type        EventType   `gorm:"type:varchar(15);default:'other'" json:"type"`
	Description string      `gorm:"type:varchar(200);not null" json:"description"`
	Impact      EventImpact `gorm:"type:varchar(10);default:'high'" json:"impact"`
	CreatedAt   time.Time   `json:"created_at"`
}

// MigrateEventModels runs database migrations for event models
func MigrateEventModels(db *gorm.DB) error {
	return db.AutoMigrate(&EconomicEvent{})
}
