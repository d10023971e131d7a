package services

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"finz_backend/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRsiTestService(t *testing.T) *RsiService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := models.MigrateRsiModels(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRsiService(db, "http://unused", "key")
}

func TestRsiSignalThresholds(t *testing.T) {
	cases := []struct {
		value float64
		want  string
	}{
		{75, "overbought"},
		{65, "approaching overbought"},
		{50, "neutral"},
		{35, "approaching oversold"},
		{25, "oversold"},
	}
	for _, c := range cases {
		if got := RsiSignal(c.value); got != c.want {
			t.Errorf("RsiSignal(%v) = %q, want %q", c.value, got, c.want)
		}
	}
}

func TestFetchRSIParsesProviderPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("symbol") != "AAPL" || q.Get("interval") != "1day" || q.Get("time_period") != "14" {
			t.Errorf("unexpected query %v", q)
		}
		w.Write([]byte(`{"values":[{"datetime":"2026-08-26","rsi":"71.42"}],"status":"ok"}`))
	}))
	defer srv.Close()

	svc := NewRsiService(nil, srv.URL, "key")
	reading, err := svc.FetchRSI("aapl")
	if err != nil {
		t.Fatalf("FetchRSI: %v", err)
	}
	if reading.Value != 71.42 || reading.Signal != "overbought" {
		t.Fatalf("unexpected reading %+v", reading)
	}
}

func TestFetchRSIFailuresMapToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"values":[],"status":"error"}`))
	}))
	defer srv.Close()

	svc := NewRsiService(nil, srv.URL, "key")
	if _, err := svc.FetchRSI("AAPL"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestFollowRejectsDuplicates(t *testing.T) {
	svc := newRsiTestService(t)

	if _, err := svc.Follow(1, "aapl"); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if _, err := svc.Follow(1, "AAPL"); !errors.Is(err, ErrAlreadyWatching) {
		t.Fatalf("expected ErrAlreadyWatching, got %v", err)
	}
	// a different user may watch the same ticker
	if _, err := svc.Follow(2, "AAPL"); err != nil {
		t.Fatalf("second user follow: %v", err)
	}
}

func TestUnfollowUnknownTicker(t *testing.T) {
	svc := newRsiTestService(t)
	if err := svc.Unfollow(1, "AAPL"); !errors.Is(err, ErrNotWatching) {
		t.Fatalf("expected ErrNotWatching, got %v", err)
	}
}

func TestCountUsedTodayIgnoresOlderSamples(t *testing.T) {
	svc := newRsiTestService(t)
	now := time.Date(2026, 8, 26, 15, 0, 0, 0, time.UTC)

	// two today, one yesterday
	svc.SaveSample("AAPL", 50, now.Add(-2*time.Hour))
	svc.SaveSample("MSFT", 60, now.Add(-time.Hour))
	svc.SaveSample("AAPL", 40, now.Add(-26*time.Hour))

	count, err := svc.CountUsedToday(now)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("CountUsedToday = %d, want 2", count)
	}
}

func TestStaleTickersOrdering(t *testing.T) {
	svc := newRsiTestService(t)
	now := time.Now()

	for _, ticker := range []string{"AAPL", "MSFT", "TSLA", "NVDA"} {
		if _, err := svc.Follow(1, ticker); err != nil {
			t.Fatal(err)
		}
	}

	// NVDA and AAPL have samples; MSFT and TSLA never sampled
	svc.SaveSample("NVDA", 50, now.Add(-time.Hour))
	svc.SaveSample("AAPL", 50, now.Add(-3*time.Hour))

	got, err := svc.StaleTickers(10)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	// never-sampled first by symbol, then oldest sample first
	want := []string{"MSFT", "TSLA", "AAPL", "NVDA"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("StaleTickers = %v, want %v", got, want)
	}
}

func TestStaleTickersHonorsLimit(t *testing.T) {
	svc := newRsiTestService(t)

	for _, ticker := range []string{"AAPL", "MSFT", "TSLA"} {
		if _, err := svc.Follow(1, ticker); err != nil {
			t.Fatal(err)
		}
	}

	got, err := svc.StaleTickers(2)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("limit ignored: %v", got)
	}

	if got, _ := svc.StaleTickers(0); got != nil {
		t.Fatalf("zero limit must return nothing, got %v", got)
	}
}

func TestLatestStatusFreshness(t *testing.T) {
	svc := newRsiTestService(t)

	// no sample yet: empty status, not an error
	status, err := svc.LatestStatus("AAPL", RsiFreshnessWindow)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Fresh || status.Value != nil {
		t.Fatalf("empty history must not be fresh: %+v", status)
	}

	// stale sample: value withheld
	svc.SaveSample("AAPL", 72, time.Now().Add(-time.Hour))
	status, err = svc.LatestStatus("AAPL", RsiFreshnessWindow)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Fresh || status.Value != nil {
		t.Fatalf("stale sample must be withheld: %+v", status)
	}

	// fresh sample: served with its signal
	svc.SaveSample("AAPL", 72, time.Now().Add(-time.Minute))
	status, err = svc.LatestStatus("AAPL", RsiFreshnessWindow)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Fresh || status.Value == nil || *status.Value != 72 {
		t.Fatalf("fresh sample must be served: %+v", status)
	}
	if status.Signal != "overbought" {
		t.Fatalf("signal = %q", status.Signal)
	}
}
