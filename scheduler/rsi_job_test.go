package scheduler

import (
	"errors"
	"testing"
	"time"

	"finz_backend/services"
)

// fakeRsiStore scripts the store side of the polling job
type fakeRsiStore struct {
	used        int64
	stale       []string
	failFetch   map[string]bool
	fetched     []string
	saved       []string
	staleCalls  []int
	countCalled bool
}

func (f *fakeRsiStore) CountUsedToday(now time.Time) (int64, error) {
	f.countCalled = true
	return f.used, nil
}

func (f *fakeRsiStore) StaleTickers(limit int) ([]string, error) {
	f.staleCalls = append(f.staleCalls, limit)
	if limit < len(f.stale) {
		return f.stale[:limit], nil
	}
	return f.stale, nil
}

func (f *fakeRsiStore) FetchRSI(ticker string) (*services.RsiReading, error) {
	f.fetched = append(f.fetched, ticker)
	if f.failFetch[ticker] {
		return nil, errors.New("provider down")
	}
	return &services.RsiReading{Ticker: ticker, Value: 55, ObservedAt: time.Now()}, nil
}

func (f *fakeRsiStore) SaveSample(ticker string, value float64, capturedAt time.Time) error {
	f.saved = append(f.saved, ticker)
	return nil
}

// fixedClock pins the job to one instant
type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func newTestJob(t *testing.T, store *fakeRsiStore, at time.Time) *RsiJob {
	t.Helper()
	cal := testCalendar(t)
	return NewRsiJob(store, cal).WithClock(fixedClock{at: at})
}

func TestTargetRate(t *testing.T) {
	cases := []struct {
		remaining int64
		minutes   float64
		want      int
	}{
		{795, 390, 3}, // full budget at open: ceil(2.04)
		{5, 10, 1},    // trickle near the end of the budget
		{5, 1, 5},     // last minute: everything left, capped
		{400, 1, 5},   // ceiling applies
		{0, 100, 0},
		{10, 0, 0},
	}
	for _, c := range cases {
		if got := targetRate(c.remaining, c.minutes, MaxBatchPerTick); got != c.want {
			t.Errorf("targetRate(%d, %v) = %d, want %d", c.remaining, c.minutes, got, c.want)
		}
	}
}

func TestRunOutsideWindowDoesNothing(t *testing.T) {
	cal := testCalendar(t)
	saturday := time.Date(2026, 8, 29, 14, 0, 0, 0, cal.Location())

	store := &fakeRsiStore{stale: []string{"AAPL"}}
	job := newTestJob(t, store, saturday)

	if err := job.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.countCalled || len(store.fetched) != 0 {
		t.Fatal("closed window must touch nothing")
	}
}

func TestRunBudgetExhausted(t *testing.T) {
	cal := testCalendar(t)
	noon := time.Date(2026, 8, 26, 12, 0, 0, 0, cal.Location())

	store := &fakeRsiStore{used: DailyRequestLimit, stale: []string{"AAPL"}}
	job := newTestJob(t, store, noon)

	if err := job.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.staleCalls) != 0 || len(store.fetched) != 0 {
		t.Fatal("exhausted budget must fetch nothing")
	}
}

func TestRunBatchSizeNearClose(t *testing.T) {
	cal := testCalendar(t)
	// 17:50, ten minutes left, five requests left in the budget
	at := time.Date(2026, 8, 26, 17, 50, 0, 0, cal.Location())

	store := &fakeRsiStore{
		used:  DailyRequestLimit - 5,
		stale: []string{"AAPL", "MSFT", "TSLA"},
	}
	job := newTestJob(t, store, at)

	if err := job.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.staleCalls) != 1 || store.staleCalls[0] != 1 {
		t.Fatalf("expected a batch of 1, asked for %v", store.staleCalls)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected 1 stored sample, got %d", len(store.saved))
	}
}

func TestRunFailedFetchConsumesNoBudget(t *testing.T) {
	cal := testCalendar(t)
	noon := time.Date(2026, 8, 26, 12, 0, 0, 0, cal.Location())

	store := &fakeRsiStore{
		stale:     []string{"AAPL", "MSFT", "TSLA"},
		failFetch: map[string]bool{"MSFT": true},
	}
	job := newTestJob(t, store, noon)

	if err := job.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	// all three attempted, only the successes stored
	if len(store.fetched) != 3 {
		t.Fatalf("expected 3 fetch attempts, got %d", len(store.fetched))
	}
	if len(store.saved) != 2 {
		t.Fatalf("only successful fetches may consume budget, got %d saved", len(store.saved))
	}
	for _, ticker := range store.saved {
		if ticker == "MSFT" {
			t.Fatal("failed fetch must not be stored")
		}
	}
}
