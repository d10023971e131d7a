package alerts

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"finz_backend/models"

	"github.com/shopspring/decimal"
)

// fakeQuotes is a canned QuoteSource that counts upstream calls
type fakeQuotes struct {
	values map[FieldKey]float64
	fail   map[FieldKey]bool
	calls  map[FieldKey]int
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{
		values: make(map[FieldKey]float64),
		fail:   make(map[FieldKey]bool),
		calls:  make(map[FieldKey]int),
	}
}

func (f *fakeQuotes) set(ticker string, field models.AlertField, value float64) {
	f.values[FieldKey{Ticker: ticker, Field: field}] = value
}

func (f *fakeQuotes) setUnavailable(ticker string, field models.AlertField) {
	f.fail[FieldKey{Ticker: ticker, Field: field}] = true
}

func (f *fakeQuotes) GetQuoteField(ticker string, field models.AlertField) (float64, error) {
	key := FieldKey{Ticker: ticker, Field: field}
	f.calls[key]++
	if f.fail[key] {
		return 0, fmt.Errorf("quote down")
	}
	return f.values[key], nil
}

func ts(t time.Time) *time.Time { return &t }

func TestCompareOperators(t *testing.T) {
	cases := []struct {
		value     float64
		cmp       models.Comparator
		threshold float64
		want      bool
	}{
		{230.01, models.ComparatorGreater, 230, true},
		{230, models.ComparatorGreater, 230, false},
		{229.99, models.ComparatorLess, 230, true},
		{230, models.ComparatorLess, 230, false},
		{230.005, models.ComparatorEqual, 230, true},
		{230.02, models.ComparatorEqual, 230, false},
	}
	for _, c := range cases {
		got := compare(c.value, c.cmp, c.threshold)
		if got != c.want {
			t.Errorf("compare(%v, %s, %v) = %v, want %v", c.value, c.cmp, c.threshold, got, c.want)
		}
	}
}

func TestSimpleRuleLatchCycle(t *testing.T) {
	quotes := newFakeQuotes()
	quotes.set("AAPL", models.FieldPrice, 234.5)

	alert := &models.SimpleAlert{
		ID: 1, UserID: 7, Ticker: "AAPL",
		Field: models.FieldPrice, Comparator: models.ComparatorGreater,
		Value: decimal.NewFromInt(230),
	}
	rule := SimpleRule{Alert: alert}

	// dormant + condition met -> activated
	tr := rule.Evaluate(NewSnapshot(quotes))
	if tr.Kind != TransitionActivated {
		t.Fatalf("expected activation, got %v", tr.Kind)
	}
	if !strings.Contains(tr.Message, "AAPL") || !strings.Contains(tr.Message, ">") {
		t.Fatalf("unexpected message %q", tr.Message)
	}

	// latched + still met -> nothing (no re-notification)
	alert.TriggeredAt = ts(time.Now())
	tr = rule.Evaluate(NewSnapshot(quotes))
	if tr.Kind != TransitionNone {
		t.Fatalf("latched rule must not re-fire, got %v", tr.Kind)
	}

	// latched + condition stops -> silent clear
	quotes.set("AAPL", models.FieldPrice, 225)
	tr = rule.Evaluate(NewSnapshot(quotes))
	if tr.Kind != TransitionCleared {
		t.Fatalf("expected silent clear, got %v", tr.Kind)
	}
	if tr.Message != "" {
		t.Fatalf("clear must carry no message, got %q", tr.Message)
	}
}

func TestSimpleRuleUnavailableIsNoop(t *testing.T) {
	quotes := newFakeQuotes()
	quotes.setUnavailable("AAPL", models.FieldPrice)

	alert := &models.SimpleAlert{
		ID: 1, Ticker: "AAPL", Field: models.FieldPrice,
		Comparator: models.ComparatorGreater, Value: decimal.NewFromInt(230),
		TriggeredAt: ts(time.Now()),
	}

	tr := SimpleRule{Alert: alert}.Evaluate(NewSnapshot(quotes))
	if tr.Kind != TransitionNone {
		t.Fatalf("data gap must not flip the latch, got %v", tr.Kind)
	}
}

func TestRangeRuleEnterAndExit(t *testing.T) {
	quotes := newFakeQuotes()
	alert := &models.RangeAlert{
		ID: 2, Ticker: "MSFT", Field: models.FieldPrice,
		MinValue: decimal.NewFromInt(120), MaxValue: decimal.NewFromInt(130),
	}
	rule := RangeRule{Alert: alert}

	// below the band, dormant: nothing
	quotes.set("MSFT", models.FieldPrice, 115)
	if tr := rule.Evaluate(NewSnapshot(quotes)); tr.Kind != TransitionNone {
		t.Fatalf("outside band while dormant must be a no-op, got %v", tr.Kind)
	}

	// enters the band
	quotes.set("MSFT", models.FieldPrice, 125)
	tr := rule.Evaluate(NewSnapshot(quotes))
	if tr.Kind != TransitionActivated {
		t.Fatalf("expected enter event, got %v", tr.Kind)
	}
	if !strings.Contains(tr.Message, "entered range") {
		t.Fatalf("unexpected enter message %q", tr.Message)
	}

	// leaves the band: exit event, not a silent clear
	alert.TriggeredAt = ts(time.Now())
	quotes.set("MSFT", models.FieldPrice, 135)
	tr = rule.Evaluate(NewSnapshot(quotes))
	if tr.Kind != TransitionExited {
		t.Fatalf("expected exit event, got %v", tr.Kind)
	}
	if !strings.Contains(tr.Message, "left range") {
		t.Fatalf("unexpected exit message %q", tr.Message)
	}
}

func TestRangeBoundsAreInclusive(t *testing.T) {
	quotes := newFakeQuotes()
	alert := &models.RangeAlert{
		ID: 2, Ticker: "MSFT", Field: models.FieldPrice,
		MinValue: decimal.NewFromInt(120), MaxValue: decimal.NewFromInt(130),
	}
	rule := RangeRule{Alert: alert}

	for _, boundary := range []float64{120, 130} {
		alert.TriggeredAt = nil
		quotes.set("MSFT", models.FieldPrice, boundary)
		if tr := rule.Evaluate(NewSnapshot(quotes)); tr.Kind != TransitionActivated {
			t.Errorf("value %v on the bound must count as inside, got %v", boundary, tr.Kind)
		}
	}
}

func TestPercentRuleMagnitudeDefault(t *testing.T) {
	quotes := newFakeQuotes()
	alert := &models.PercentAlert{
		ID: 3, Ticker: "TSLA", Field: models.FieldPrice,
		PercentChange:  decimal.NewFromInt(-5),
		ReferenceValue: decimal.NewFromInt(100),
	}

	// threshold asks for a 5% drop; a 6% gain also fires by magnitude
	quotes.set("TSLA", models.FieldPrice, 106)
	tr := PercentRule{Alert: alert}.Evaluate(NewSnapshot(quotes))
	if tr.Kind != TransitionActivated {
		t.Fatalf("magnitude mode must fire on an equal-sized gain, got %v", tr.Kind)
	}
}

func TestPercentRuleDirectional(t *testing.T) {
	quotes := newFakeQuotes()
	alert := &models.PercentAlert{
		ID: 3, Ticker: "TSLA", Field: models.FieldPrice,
		PercentChange:  decimal.NewFromInt(-5),
		ReferenceValue: decimal.NewFromInt(100),
	}
	rule := PercentRule{Alert: alert, Directional: true}

	quotes.set("TSLA", models.FieldPrice, 106)
	if tr := rule.Evaluate(NewSnapshot(quotes)); tr.Kind != TransitionNone {
		t.Fatalf("directional drop rule must ignore a gain, got %v", tr.Kind)
	}

	quotes.set("TSLA", models.FieldPrice, 94)
	if tr := rule.Evaluate(NewSnapshot(quotes)); tr.Kind != TransitionActivated {
		t.Fatalf("directional drop rule must fire on the drop, got %v", tr.Kind)
	}
}

func TestPercentRuleZeroReferenceIsNoop(t *testing.T) {
	quotes := newFakeQuotes()
	quotes.set("TSLA", models.FieldPrice, 100)

	alert := &models.PercentAlert{
		ID: 3, Ticker: "TSLA", Field: models.FieldPrice,
		PercentChange:  decimal.NewFromInt(5),
		ReferenceValue: decimal.Zero,
	}
	if tr := (PercentRule{Alert: alert}).Evaluate(NewSnapshot(quotes)); tr.Kind != TransitionNone {
		t.Fatalf("zero reference must be a no-op, got %v", tr.Kind)
	}
}

func TestCompositeOperators(t *testing.T) {
	quotes := newFakeQuotes()
	quotes.set("NVDA", models.FieldPrice, 500)
	quotes.set("NVDA", models.FieldVolume, 1000)

	conditions := []models.AlertCondition{
		{Field: models.FieldPrice, Comparator: models.ComparatorGreater, Value: decimal.NewFromInt(400), Ordinal: 0},
		{Field: models.FieldVolume, Comparator: models.ComparatorGreater, Value: decimal.NewFromInt(5000), Ordinal: 1},
	}

	and := CompositeRule{Alert: &models.CompositeAlert{
		ID: 4, Ticker: "NVDA", Operator: models.LogicalAnd, Conditions: conditions,
	}}
	if tr := and.Evaluate(NewSnapshot(quotes)); tr.Kind != TransitionNone {
		t.Fatalf("AND with one false condition must not fire, got %v", tr.Kind)
	}

	or := CompositeRule{Alert: &models.CompositeAlert{
		ID: 5, Ticker: "NVDA", Operator: models.LogicalOr, Conditions: conditions,
	}}
	tr := or.Evaluate(NewSnapshot(quotes))
	if tr.Kind != TransitionActivated {
		t.Fatalf("OR with one true condition must fire, got %v", tr.Kind)
	}
	if !strings.Contains(tr.Message, "OR") {
		t.Fatalf("unexpected message %q", tr.Message)
	}
}

func TestCompositeUnavailableCountsFalse(t *testing.T) {
	quotes := newFakeQuotes()
	quotes.set("NVDA", models.FieldPrice, 500)
	quotes.setUnavailable("NVDA", models.FieldVolume)

	conditions := []models.AlertCondition{
		{Field: models.FieldPrice, Comparator: models.ComparatorGreater, Value: decimal.NewFromInt(400), Ordinal: 0},
		{Field: models.FieldVolume, Comparator: models.ComparatorGreater, Value: decimal.NewFromInt(5), Ordinal: 1},
	}

	and := CompositeRule{Alert: &models.CompositeAlert{
		ID: 4, Ticker: "NVDA", Operator: models.LogicalAnd, Conditions: conditions,
	}}
	if tr := and.Evaluate(NewSnapshot(quotes)); tr.Kind != TransitionNone {
		t.Fatalf("unavailable condition must count as false under AND, got %v", tr.Kind)
	}

	or := CompositeRule{Alert: &models.CompositeAlert{
		ID: 5, Ticker: "NVDA", Operator: models.LogicalOr, Conditions: conditions,
	}}
	if tr := or.Evaluate(NewSnapshot(quotes)); tr.Kind != TransitionActivated {
		t.Fatalf("OR must still fire on the available true condition, got %v", tr.Kind)
	}
}

func TestSnapshotMemoizesHitsAndMisses(t *testing.T) {
	quotes := newFakeQuotes()
	quotes.set("AAPL", models.FieldPrice, 100)
	quotes.setUnavailable("TSLA", models.FieldPrice)

	snap := NewSnapshot(quotes)
	for i := 0; i < 3; i++ {
		snap.Value("AAPL", models.FieldPrice)
		snap.Value("TSLA", models.FieldPrice)
	}

	hitKey := FieldKey{Ticker: "AAPL", Field: models.FieldPrice}
	missKey := FieldKey{Ticker: "TSLA", Field: models.FieldPrice}
	if quotes.calls[hitKey] != 1 {
		t.Errorf("hit fetched %d times, want 1", quotes.calls[hitKey])
	}
	if quotes.calls[missKey] != 1 {
		t.Errorf("miss fetched %d times, want 1", quotes.calls[missKey])
	}
	if snap.Size() != 2 {
		t.Errorf("snapshot size = %d, want 2", snap.Size())
	}
}
