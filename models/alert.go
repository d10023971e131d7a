package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AlertField selects which quote field an alert evaluates
type AlertField string

const (
	FieldPrice  AlertField = "price"
	FieldVolume AlertField = "volume"
)

// String returns the string representation of AlertField
func (f AlertField) String() string {
	return string(f)
}

// Valid reports whether the field is a known quote field
func (f AlertField) Valid() bool {
	return f == FieldPrice || f == FieldVolume
}

// Comparator represents comparison operators for alert conditions
type Comparator string

const (
	ComparatorGreater Comparator = "greater_than"
	ComparatorLess    Comparator = "less_than"
	ComparatorEqual   Comparator = "equal_to"
)

// String returns the string representation of Comparator
func (c Comparator) String() string {
	return string(c)
}

// Valid reports whether the comparator is known
func (c Comparator) Valid() bool {
	return c == ComparatorGreater || c == ComparatorLess || c == ComparatorEqual
}

// Symbol returns the display symbol used in alert messages
func (c Comparator) Symbol() string {
	switch c {
	case ComparatorGreater:
		return ">"
	case ComparatorLess:
		return "<"
	case ComparatorEqual:
		return "="
	default:
		return "?"
	}
}

// LogicalOperator for combining composite alert conditions
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// String returns the string representation of LogicalOperator
func (l LogicalOperator) String() string {
	return string(l)
}

// AlertKind identifies the alert variant
type AlertKind string

const (
	KindSimple    AlertKind = "simple"
	KindRange     AlertKind = "range"
	KindPercent   AlertKind = "percent"
	KindComposite AlertKind = "composite"
)

// SimpleAlert fires once when a quote field crosses a threshold.
// TriggeredAt doubles as the re-notification latch: non-nil while the
// condition holds, cleared silently when it stops holding.
type SimpleAlert struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      uint            `gorm:"index;not null" json:"user_id"`
	User        User            `gorm:"foreignKey:UserID" json:"-"`
	Ticker      string          `gorm:"type:varchar(10);index;not null" json:"ticker"`
	Field       AlertField      `gorm:"type:varchar(15);not null" json:"field"`
	Comparator  Comparator      `gorm:"type:varchar(15);not null" json:"comparator"`
	Value       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"value"`
	Active      bool            `gorm:"default:true" json:"active"`
	TriggeredAt *time.Time      `json:"triggered_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RangeAlert fires on entering [MinValue, MaxValue] and again on
// leaving it. TriggeredAt tracks "currently inside the range".
type RangeAlert struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      uint            `gorm:"index;not null" json:"user_id"`
	User        User            `gorm:"foreignKey:UserID" json:"-"`
	Ticker      string          `gorm:"type:varchar(10);index;not null" json:"ticker"`
	Field       AlertField      `gorm:"type:varchar(15);not null" json:"field"`
	MinValue    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"min_value"`
	MaxValue    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"max_value"`
	Active      bool            `gorm:"default:true" json:"active"`
	TriggeredAt *time.Time      `json:"triggered_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PercentAlert fires when the field moves at least PercentChange percent
// away from the reference value captured at creation time. The sign of
// PercentChange records the direction the user asked for; by default
// only the magnitude is compared (see services/alerts).
type PercentAlert struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         uint            `gorm:"index;not null" json:"user_id"`
	User           User            `gorm:"foreignKey:UserID" json:"-"`
	Ticker         string          `gorm:"type:varchar(10);index;not null" json:"ticker"`
	Field          AlertField      `gorm:"type:varchar(15);not null" json:"field"`
	PercentChange  decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"percent_change"`
	Window         string          `gorm:"type:varchar(20);default:'daily'" json:"window"`
	ReferenceValue decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"reference_value"`
	Active         bool            `gorm:"default:true" json:"active"`
	TriggeredAt    *time.Time      `json:"triggered_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CompositeAlert combines two or more conditions on the same ticker
// with a logical operator.
type CompositeAlert struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	UserID      uint             `gorm:"index;not null" json:"user_id"`
	User        User             `gorm:"foreignKey:UserID" json:"-"`
	Ticker      string           `gorm:"type:varchar(10);index;not null" json:"ticker"`
	Operator    LogicalOperator  `gorm:"type:varchar(5);not null" json:"operator"`
	Conditions  []AlertCondition `gorm:"foreignKey:AlertID;constraint:OnDelete:CASCADE" json:"conditions"`
	Active      bool             `gorm:"default:true" json:"active"`
	TriggeredAt *time.Time       `json:"triggered_at"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// AlertCondition is a single clause of a composite alert. Conditions do
// not carry their own ticker; they all evaluate against the parent's.
type AlertCondition struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	AlertID    uint            `gorm:"index;not null" json:"alert_id"`
	Field      AlertField      `gorm:"type:varchar(15);not null" json:"field"`
	Comparator Comparator      `gorm:"type:varchar(15);not null" json:"comparator"`
	Value      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"value"`
	Ordinal    int             `gorm:"default:0" json:"ordinal"`
	CreatedAt  time.Time       `json:"created_at"`
}

// MigrateAlertModels runs database migrations for alert models
func MigrateAlertModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&SimpleAlert{},
		&RangeAlert{},
		&PercentAlert{},
		&CompositeAlert{},
		&AlertCondition{},
	)
}
