package alerts

import (
	"errors"
	"strings"
	"testing"
	"time"

	"finz_backend/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := models.MigrateAlertModels(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// recordingNotifier captures dispatched notifications
type recordingNotifier struct {
	titles []string
	bodies []string
	users  []uint
	fail   bool
}

func (n *recordingNotifier) Send(userID uint, title, body string) error {
	if n.fail {
		return errors.New("delivery down")
	}
	n.users = append(n.users, userID)
	n.titles = append(n.titles, title)
	n.bodies = append(n.bodies, body)
	return nil
}

func newTestService(t *testing.T, db *gorm.DB, quotes QuoteSource, notifier Notifier, now func() time.Time) *Service {
	t.Helper()
	return NewService(db, quotes, notifier, Config{Now: now})
}

func TestEvaluateUserActivationIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	quotes := newFakeQuotes()
	quotes.set("AAPL", models.FieldPrice, 240)

	alert := models.SimpleAlert{
		UserID: 1, Ticker: "AAPL", Field: models.FieldPrice,
		Comparator: models.ComparatorGreater, Value: decimal.NewFromInt(230), Active: true,
	}
	if err := db.Create(&alert).Error; err != nil {
		t.Fatal(err)
	}

	notifier := &recordingNotifier{}
	svc := newTestService(t, db, quotes, notifier, time.Now)

	result, err := svc.EvaluateUser(1)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(result.Events))
	}

	var stored models.SimpleAlert
	if err := db.First(&stored, alert.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.TriggeredAt == nil {
		t.Fatal("latch must be persisted after activation")
	}

	// condition still true on the next cycle: no second event
	result, err = svc.EvaluateUser(1)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Events) != 0 {
		t.Fatalf("latched alert re-fired: %d events", len(result.Events))
	}
	if len(notifier.titles) != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", len(notifier.titles))
	}
}

func TestEvaluateUserClearsLatchSilently(t *testing.T) {
	db := newTestDB(t)
	quotes := newFakeQuotes()
	quotes.set("AAPL", models.FieldPrice, 220)

	triggered := time.Now().Add(-time.Hour)
	alert := models.SimpleAlert{
		UserID: 1, Ticker: "AAPL", Field: models.FieldPrice,
		Comparator: models.ComparatorGreater, Value: decimal.NewFromInt(230),
		Active: true, TriggeredAt: &triggered,
	}
	if err := db.Create(&alert).Error; err != nil {
		t.Fatal(err)
	}

	notifier := &recordingNotifier{}
	svc := newTestService(t, db, quotes, notifier, time.Now)

	result, err := svc.EvaluateUser(1)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Events) != 0 {
		t.Fatalf("silent clear must emit no events, got %d", len(result.Events))
	}
	if len(notifier.titles) != 0 {
		t.Fatal("silent clear must not notify")
	}

	var stored models.SimpleAlert
	db.First(&stored, alert.ID)
	if stored.TriggeredAt != nil {
		t.Fatal("latch must be cleared in the database")
	}
}

func TestEvaluateUserRangeExitEmitsEvent(t *testing.T) {
	db := newTestDB(t)
	quotes := newFakeQuotes()
	quotes.set("MSFT", models.FieldPrice, 135)

	triggered := time.Now().Add(-time.Hour)
	alert := models.RangeAlert{
		UserID: 1, Ticker: "MSFT", Field: models.FieldPrice,
		MinValue: decimal.NewFromInt(120), MaxValue: decimal.NewFromInt(130),
		Active: true, TriggeredAt: &triggered,
	}
	if err := db.Create(&alert).Error; err != nil {
		t.Fatal(err)
	}

	notifier := &recordingNotifier{}
	svc := newTestService(t, db, quotes, notifier, time.Now)

	result, err := svc.EvaluateUser(1)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Events) != 1 || !strings.Contains(result.Events[0].Message, "left range") {
		t.Fatalf("expected one exit event, got %+v", result.Events)
	}

	var stored models.RangeAlert
	db.First(&stored, alert.ID)
	if stored.TriggeredAt != nil {
		t.Fatal("exit must clear the latch")
	}
}

func TestEvaluateUserSkipsInactiveAlerts(t *testing.T) {
	db := newTestDB(t)
	quotes := newFakeQuotes()
	quotes.set("AAPL", models.FieldPrice, 240)

	alert := models.SimpleAlert{
		UserID: 1, Ticker: "AAPL", Field: models.FieldPrice,
		Comparator: models.ComparatorGreater, Value: decimal.NewFromInt(230), Active: false,
	}
	if err := db.Create(&alert).Error; err != nil {
		t.Fatal(err)
	}
	// gorm default:true would override a zero-valued Active on create
	db.Model(&models.SimpleAlert{}).Where("id = ?", alert.ID).Update("active", false)

	svc := newTestService(t, db, quotes, &recordingNotifier{}, time.Now)
	result, err := svc.EvaluateUser(1)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Evaluated != 0 {
		t.Fatalf("inactive alert was evaluated: %d rules", result.Evaluated)
	}
}

func TestNotificationDebounce(t *testing.T) {
	db := newTestDB(t)
	quotes := newFakeQuotes()
	quotes.set("AAPL", models.FieldPrice, 240)
	quotes.set("MSFT", models.FieldPrice, 340)
	quotes.set("TSLA", models.FieldPrice, 440)

	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	now := base
	notifier := &recordingNotifier{}
	svc := newTestService(t, db, quotes, notifier, func() time.Time { return now })

	makeAlert := func(ticker string, threshold int64) {
		a := models.SimpleAlert{
			UserID: 1, Ticker: ticker, Field: models.FieldPrice,
			Comparator: models.ComparatorGreater, Value: decimal.NewFromInt(threshold), Active: true,
		}
		if err := db.Create(&a).Error; err != nil {
			t.Fatal(err)
		}
	}

	makeAlert("AAPL", 230)
	if _, err := svc.EvaluateUser(1); err != nil {
		t.Fatal(err)
	}
	if len(notifier.titles) != 1 {
		t.Fatalf("first activation must notify, got %d", len(notifier.titles))
	}

	// a new alert fires one minute later: suppressed by the debounce
	now = base.Add(time.Minute)
	makeAlert("MSFT", 330)
	if _, err := svc.EvaluateUser(1); err != nil {
		t.Fatal(err)
	}
	if len(notifier.titles) != 1 {
		t.Fatalf("notification inside the debounce window must be dropped, got %d", len(notifier.titles))
	}

	// past the window the next activation notifies again
	now = base.Add(6 * time.Minute)
	makeAlert("TSLA", 430)
	if _, err := svc.EvaluateUser(1); err != nil {
		t.Fatal(err)
	}
	if len(notifier.titles) != 2 {
		t.Fatalf("notification after the window must go out, got %d", len(notifier.titles))
	}
}

func TestNotificationAggregation(t *testing.T) {
	three := []string{"a", "b", "c"}
	if got := renderBody(three); got != "a\nb\nc" {
		t.Errorf("three messages must be inlined, got %q", got)
	}

	five := []string{"first", "b", "c", "d", "e"}
	got := renderBody(five)
	if !strings.HasPrefix(got, "first\n") || !strings.Contains(got, "and 4 more") {
		t.Errorf("overflow must collapse to first + count, got %q", got)
	}
}

func TestNotifierFailureDoesNotFailCycle(t *testing.T) {
	db := newTestDB(t)
	quotes := newFakeQuotes()
	quotes.set("AAPL", models.FieldPrice, 240)

	alert := models.SimpleAlert{
		UserID: 1, Ticker: "AAPL", Field: models.FieldPrice,
		Comparator: models.ComparatorGreater, Value: decimal.NewFromInt(230), Active: true,
	}
	if err := db.Create(&alert).Error; err != nil {
		t.Fatal(err)
	}

	svc := newTestService(t, db, quotes, &recordingNotifier{fail: true}, time.Now)
	if _, err := svc.EvaluateUser(1); err != nil {
		t.Fatalf("delivery failure must not fail the cycle: %v", err)
	}

	var stored models.SimpleAlert
	db.First(&stored, alert.ID)
	if stored.TriggeredAt == nil {
		t.Fatal("latch must commit even when delivery fails")
	}
}

func TestEvaluateAllCoversEveryAlertOwner(t *testing.T) {
	db := newTestDB(t)
	quotes := newFakeQuotes()
	quotes.set("AAPL", models.FieldPrice, 240)

	for _, userID := range []uint{1, 2} {
		a := models.SimpleAlert{
			UserID: userID, Ticker: "AAPL", Field: models.FieldPrice,
			Comparator: models.ComparatorGreater, Value: decimal.NewFromInt(230), Active: true,
		}
		if err := db.Create(&a).Error; err != nil {
			t.Fatal(err)
		}
	}

	notifier := &recordingNotifier{}
	svc := newTestService(t, db, quotes, notifier, time.Now)
	if err := svc.EvaluateAll(); err != nil {
		t.Fatalf("evaluate all: %v", err)
	}

	if len(notifier.users) != 2 {
		t.Fatalf("expected notifications for 2 users, got %v", notifier.users)
	}

	var triggered int64
	db.Model(&models.SimpleAlert{}).Where("triggered_at IS NOT NULL").Count(&triggered)
	if triggered != 2 {
		t.Fatalf("expected 2 latched alerts, got %d", triggered)
	}
}
