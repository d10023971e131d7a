package alerts

import (
	"errors"
	"fmt"

	"finz_backend/models"
	"finz_backend/services"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Validation and lookup errors surfaced to the API layer
var (
	ErrInvalidField      = errors.New("unknown quote field")
	ErrInvalidComparator = errors.New("unknown comparator")
	ErrInvalidOperator   = errors.New("operator must be AND or OR")
	ErrInvalidRange      = errors.New("lower bound must be below upper bound")
	ErrZeroPercent       = errors.New("percent change must be non-zero")
	ErrTooFewConditions  = errors.New("composite alert needs at least two conditions")
	ErrAlertNotFound     = errors.New("alert not found")
)

// ConditionInput is one clause of a composite alert as submitted by the
// client. Ordinal follows submission order.
type ConditionInput struct {
	Field      models.AlertField
	Comparator models.Comparator
	Value      decimal.Decimal
}

// UserAlerts groups a user's alerts by kind for the list endpoint
type UserAlerts struct {
	Simple    []models.SimpleAlert    `json:"simple"`
	Range     []models.RangeAlert     `json:"range"`
	Percent   []models.PercentAlert   `json:"percent"`
	Composite []models.CompositeAlert `json:"composite"`
}

// CreateSimple creates a threshold alert
func (s *Service) CreateSimple(userID uint, ticker string, field models.AlertField, cmp models.Comparator, value decimal.Decimal) (*models.SimpleAlert, error) {
	symbol, err := services.NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	if !field.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	if !cmp.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidComparator, cmp)
	}

	alert := models.SimpleAlert{
		UserID:     userID,
		Ticker:     symbol,
		Field:      field,
		Comparator: cmp,
		Value:      value,
		Active:     true,
	}
	if err := s.db.Create(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// CreateRange creates a band alert over [lower, upper]
func (s *Service) CreateRange(userID uint, ticker string, field models.AlertField, lower, upper decimal.Decimal) (*models.RangeAlert, error) {
	symbol, err := services.NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	if !field.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	if !lower.LessThan(upper) {
		return nil, ErrInvalidRange
	}

	alert := models.RangeAlert{
		UserID:   userID,
		Ticker:   symbol,
		Field:    field,
		MinValue: lower,
		MaxValue: upper,
		Active:   true,
	}
	if err := s.db.Create(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// CreatePercent creates a percent-move alert. The current value of the
// field is captured as the reference, so creation fails when the quote
// is unavailable rather than storing a rule that can never fire.
func (s *Service) CreatePercent(userID uint, ticker string, field models.AlertField, percent decimal.Decimal, window string) (*models.PercentAlert, error) {
	symbol, err := services.NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	if !field.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	if percent.IsZero() {
		return nil, ErrZeroPercent
	}
	if window == "" {
		window = "daily"
	}

	reference, err := s.quotes.GetQuoteField(symbol, field)
	if err != nil {
		return nil, fmt.Errorf("capture reference for %s: %w", symbol, err)
	}

	alert := models.PercentAlert{
		UserID:         userID,
		Ticker:         symbol,
		Field:          field,
		PercentChange:  percent,
		Window:         window,
		ReferenceValue: decimal.NewFromFloat(reference),
		Active:         true,
	}
	if err := s.db.Create(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// CreateComposite creates a multi-condition alert. All conditions
// evaluate against the parent ticker.
func (s *Service) CreateComposite(userID uint, ticker string, op models.LogicalOperator, conditions []ConditionInput) (*models.CompositeAlert, error) {
	symbol, err := services.NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	if op != models.LogicalAnd && op != models.LogicalOr {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperator, op)
	}
	if len(conditions) < 2 {
		return nil, ErrTooFewConditions
	}
	for _, cond := range conditions {
		if !cond.Field.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidField, cond.Field)
		}
		if !cond.Comparator.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidComparator, cond.Comparator)
		}
	}

	alert := models.CompositeAlert{
		UserID:   userID,
		Ticker:   symbol,
		Operator: op,
		Active:   true,
	}
	for i, cond := range conditions {
		alert.Conditions = append(alert.Conditions, models.AlertCondition{
			Field:      cond.Field,
			Comparator: cond.Comparator,
			Value:      cond.Value,
			Ordinal:    i,
		})
	}

	if err := s.db.Create(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// ListForUser returns all of a user's alerts grouped by kind
func (s *Service) ListForUser(userID uint) (*UserAlerts, error) {
	out := &UserAlerts{
		Simple:    []models.SimpleAlert{},
		Range:     []models.RangeAlert{},
		Percent:   []models.PercentAlert{},
		Composite: []models.CompositeAlert{},
	}

	if err := s.db.Where("user_id = ?", userID).Order("id").Find(&out.Simple).Error; err != nil {
		return nil, err
	}
	if err := s.db.Where("user_id = ?", userID).Order("id").Find(&out.Range).Error; err != nil {
		return nil, err
	}
	if err := s.db.Where("user_id = ?", userID).Order("id").Find(&out.Percent).Error; err != nil {
		return nil, err
	}
	err := s.db.Preload("Conditions", func(db *gorm.DB) *gorm.DB {
		return db.Order("ordinal")
	}).Where("user_id = ?", userID).Order("id").Find(&out.Composite).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Deactivate disables an alert without deleting it. The kind is not
// part of the API surface, so the id is searched across all four
// tables scoped to the owner.
func (s *Service) Deactivate(userID, alertID uint) (models.AlertKind, error) {
	return s.updateAcrossKinds(userID, alertID, func(tx *gorm.DB, model interface{}) (int64, error) {
		result := tx.Model(model).
			Where("id = ? AND user_id = ?", alertID, userID).
			Updates(map[string]interface{}{"active": false, "triggered_at": nil})
		return result.RowsAffected, result.Error
	})
}

// Activate re-enables a previously deactivated alert. The latch starts
// dormant so re-enabling a still-true condition notifies again.
func (s *Service) Activate(userID, alertID uint) (models.AlertKind, error) {
	return s.updateAcrossKinds(userID, alertID, func(tx *gorm.DB, model interface{}) (int64, error) {
		result := tx.Model(model).
			Where("id = ? AND user_id = ?", alertID, userID).
			Updates(map[string]interface{}{"active": true, "triggered_at": nil})
		return result.RowsAffected, result.Error
	})
}

// Delete removes an alert owned by the user
func (s *Service) Delete(userID, alertID uint) (models.AlertKind, error) {
	return s.updateAcrossKinds(userID, alertID, func(tx *gorm.DB, model interface{}) (int64, error) {
		result := tx.Where("id = ? AND user_id = ?", alertID, userID).Delete(model)
		if result.Error != nil {
			return 0, result.Error
		}
		if result.RowsAffected > 0 {
			if _, ok := model.(*models.CompositeAlert); ok {
				// cascade does not fire on sqlite test databases
				if err := tx.Where("alert_id = ?", alertID).Delete(&models.AlertCondition{}).Error; err != nil {
					return 0, err
				}
			}
		}
		return result.RowsAffected, nil
	})
}

// updateAcrossKinds applies op to each alert table in turn until one
// row matches, returning the kind that matched.
func (s *Service) updateAcrossKinds(userID, alertID uint, op func(tx *gorm.DB, model interface{}) (int64, error)) (models.AlertKind, error) {
	kinds := []struct {
		kind  models.AlertKind
		model interface{}
	}{
		{models.KindSimple, &models.SimpleAlert{}},
		{models.KindRange, &models.RangeAlert{}},
		{models.KindPercent, &models.PercentAlert{}},
		{models.KindComposite, &models.CompositeAlert{}},
	}

	for _, k := range kinds {
		affected, err := op(s.db, k.model)
		if err != nil {
			return "", err
		}
		if affected > 0 {
			return k.kind, nil
		}
	}
	return "", ErrAlertNotFound
}
