package models

import (
	"time"

	"gorm.io/gorm"
)

// RsiSample is one captured RSI reading. Rows are append-only; the
// count of samples captured today is also the request-accounting ledger
// for the upstream API budget.
type RsiSample struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Ticker     string    `gorm:"type:varchar(10);index;not null" json:"ticker"`
	Value      float64   `gorm:"not null" json:"value"`
	CapturedAt time.Time `gorm:"index;not null" json:"captured_at"`
}

// TickerWatch subscribes a user to RSI tracking for a symbol
type TickerWatch struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_watch_user_ticker;not null" json:"user_id"`
	Ticker    string    `gorm:"type:varchar(10);uniqueIndex:idx_watch_user_ticker;not null" json:"ticker"`
	CreatedAt time.Time `json:"created_at"`
}

// MigrateRsiModels runs database migrations for RSI models
func MigrateRsiModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&RsiSample{},
		&TickerWatch{},
	)
}
