package alerts

import (
	"fmt"
	"math"
	"sort"

	"finz_backend/models"

	"github.com/shopspring/decimal"
)

// Tolerance for the equal_to comparator
const equalTolerance = 0.01

// TransitionKind describes what happened to a rule's latch this cycle
type TransitionKind int

const (
	// TransitionNone: no state change. Unavailable data also lands
	// here; a data gap never flips the latch.
	TransitionNone TransitionKind = iota
	// TransitionActivated: Dormant -> Triggered, emits one event
	TransitionActivated
	// TransitionCleared: Triggered -> Dormant, silent (edge-triggered kinds)
	TransitionCleared
	// TransitionExited: Triggered -> Dormant with an event (range only)
	TransitionExited
)

// Transition is the outcome of evaluating one rule against a snapshot
type Transition struct {
	Kind    TransitionKind
	Message string
}

// Rule is the uniform view of the four alert variants. Evaluate is
// pure with respect to the database: it inspects the snapshot and the
// current latch and reports the transition without mutating anything.
type Rule interface {
	Key() string
	OwnerID() uint
	Latched() bool
	RequiredFields() []FieldKey
	Evaluate(snap *Snapshot) Transition
}

// compare applies a comparator with the documented equality tolerance
func compare(value float64, cmp models.Comparator, threshold float64) bool {
	switch cmp {
	case models.ComparatorGreater:
		return value > threshold
	case models.ComparatorLess:
		return value < threshold
	case models.ComparatorEqual:
		return math.Abs(value-threshold) < equalTolerance
	default:
		return false
	}
}

// formatValue renders a number the way alert messages display it
func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return decimal.NewFromFloat(v).StringFixed(0)
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// SimpleRule wraps a SimpleAlert
type SimpleRule struct {
	Alert *models.SimpleAlert
}

func (r SimpleRule) Key() string   { return fmt.Sprintf("simple-%d", r.Alert.ID) }
func (r SimpleRule) OwnerID() uint { return r.Alert.UserID }
func (r SimpleRule) Latched() bool { return r.Alert.TriggeredAt != nil }

func (r SimpleRule) RequiredFields() []FieldKey {
	return []FieldKey{{Ticker: r.Alert.Ticker, Field: r.Alert.Field}}
}

func (r SimpleRule) Evaluate(snap *Snapshot) Transition {
	value, ok := snap.Value(r.Alert.Ticker, r.Alert.Field)
	if !ok {
		return Transition{Kind: TransitionNone}
	}

	met := compare(value, r.Alert.Comparator, r.Alert.Value.InexactFloat64())

	switch {
	case met && !r.Latched():
		msg := fmt.Sprintf("%s %s ($%s) %s $%s",
			r.Alert.Ticker, r.Alert.Field,
			formatValue(value),
			r.Alert.Comparator.Symbol(),
			formatValue(r.Alert.Value.InexactFloat64()))
		return Transition{Kind: TransitionActivated, Message: msg}
	case !met && r.Latched():
		return Transition{Kind: TransitionCleared}
	default:
		return Transition{Kind: TransitionNone}
	}
}

// RangeRule wraps a RangeAlert. Unlike the edge-triggered kinds it
// emits events on both edges: entering and leaving the range.
type RangeRule struct {
	Alert *models.RangeAlert
}

func (r RangeRule) Key() string   { return fmt.Sprintf("range-%d", r.Alert.ID) }
func (r RangeRule) OwnerID() uint { return r.Alert.UserID }
func (r RangeRule) Latched() bool { return r.Alert.TriggeredAt != nil }

func (r RangeRule) RequiredFields() []FieldKey {
	return []FieldKey{{Ticker: r.Alert.Ticker, Field: r.Alert.Field}}
}

func (r RangeRule) Evaluate(snap *Snapshot) Transition {
	value, ok := snap.Value(r.Alert.Ticker, r.Alert.Field)
	if !ok {
		return Transition{Kind: TransitionNone}
	}

	lower := r.Alert.MinValue.InexactFloat64()
	upper := r.Alert.MaxValue.InexactFloat64()
	inside := value >= lower && value <= upper

	switch {
	case inside && !r.Latched():
		msg := fmt.Sprintf("%s entered range $%s-$%s ($%s)",
			r.Alert.Ticker, formatValue(lower), formatValue(upper), formatValue(value))
		return Transition{Kind: TransitionActivated, Message: msg}
	case !inside && r.Latched():
		msg := fmt.Sprintf("%s left range $%s-$%s (now $%s)",
			r.Alert.Ticker, formatValue(lower), formatValue(upper), formatValue(value))
		return Transition{Kind: TransitionExited, Message: msg}
	default:
		return Transition{Kind: TransitionNone}
	}
}

// PercentRule wraps a PercentAlert. With Directional false (the
// default) the magnitude of the move is compared against the magnitude
// of the threshold, so a rule created for declines also fires on an
// equal-sized gain. Directional true honors the threshold's sign.
type PercentRule struct {
	Alert       *models.PercentAlert
	Directional bool
}

func (r PercentRule) Key() string   { return fmt.Sprintf("percent-%d", r.Alert.ID) }
func (r PercentRule) OwnerID() uint { return r.Alert.UserID }
func (r PercentRule) Latched() bool { return r.Alert.TriggeredAt != nil }

func (r PercentRule) RequiredFields() []FieldKey {
	return []FieldKey{{Ticker: r.Alert.Ticker, Field: r.Alert.Field}}
}

func (r PercentRule) Evaluate(snap *Snapshot) Transition {
	reference := r.Alert.ReferenceValue.InexactFloat64()
	if reference == 0 {
		return Transition{Kind: TransitionNone}
	}

	value, ok := snap.Value(r.Alert.Ticker, r.Alert.Field)
	if !ok {
		return Transition{Kind: TransitionNone}
	}

	change := (value - reference) / reference * 100
	threshold := r.Alert.PercentChange.InexactFloat64()

	var met bool
	if r.Directional {
		met = (threshold > 0 && change >= threshold) ||
			(threshold < 0 && change <= threshold)
	} else {
		met = math.Abs(change) >= math.Abs(threshold)
	}

	switch {
	case met && !r.Latched():
		msg := fmt.Sprintf("%s %s moved %s%% from $%s reference",
			r.Alert.Ticker, r.Alert.Field,
			decimal.NewFromFloat(change).StringFixed(1),
			formatValue(reference))
		return Transition{Kind: TransitionActivated, Message: msg}
	case !met && r.Latched():
		return Transition{Kind: TransitionCleared}
	default:
		return Transition{Kind: TransitionNone}
	}
}

// CompositeRule wraps a CompositeAlert. All conditions evaluate against
// the parent's ticker. A condition whose value is unavailable counts as
// false; it never short-circuits the rest.
type CompositeRule struct {
	Alert *models.CompositeAlert
}

func (r CompositeRule) Key() string   { return fmt.Sprintf("composite-%d", r.Alert.ID) }
func (r CompositeRule) OwnerID() uint { return r.Alert.UserID }
func (r CompositeRule) Latched() bool { return r.Alert.TriggeredAt != nil }

func (r CompositeRule) RequiredFields() []FieldKey {
	keys := make([]FieldKey, 0, len(r.Alert.Conditions))
	for _, cond := range r.Alert.Conditions {
		keys = append(keys, FieldKey{Ticker: r.Alert.Ticker, Field: cond.Field})
	}
	return keys
}

func (r CompositeRule) Evaluate(snap *Snapshot) Transition {
	if len(r.Alert.Conditions) == 0 {
		return Transition{Kind: TransitionNone}
	}

	conditions := make([]models.AlertCondition, len(r.Alert.Conditions))
	copy(conditions, r.Alert.Conditions)
	sort.Slice(conditions, func(i, j int) bool {
		return conditions[i].Ordinal < conditions[j].Ordinal
	})

	results := make([]bool, 0, len(conditions))
	for _, cond := range conditions {
		value, ok := snap.Value(r.Alert.Ticker, cond.Field)
		if !ok {
			results = append(results, false)
			continue
		}
		results = append(results, compare(value, cond.Comparator, cond.Value.InexactFloat64()))
	}

	met := combine(r.Alert.Operator, results)

	switch {
	case met && !r.Latched():
		msg := fmt.Sprintf("%s composite alert fired (%s, %d conditions)",
			r.Alert.Ticker, r.Alert.Operator, len(conditions))
		return Transition{Kind: TransitionActivated, Message: msg}
	case !met && r.Latched():
		return Transition{Kind: TransitionCleared}
	default:
		return Transition{Kind: TransitionNone}
	}
}

// combine folds condition outcomes with the logical operator
func combine(op models.LogicalOperator, results []bool) bool {
	if len(results) == 0 {
		return false
	}
	if op == models.LogicalOr {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}
