package scheduler

import (
	"math"
	"time"

	"finz_backend/services"

	"github.com/rs/zerolog/log"
)

// RSI polling budget. The provider allows 800 requests per day; the
// limit stays under it so manual refreshes cannot blow the quota.
const (
	DailyRequestLimit = 795
	MaxBatchPerTick   = 5
)

// rsiStore is the slice of the RSI service the job needs
type rsiStore interface {
	CountUsedToday(now time.Time) (int64, error)
	StaleTickers(limit int) ([]string, error)
	FetchRSI(ticker string) (*services.RsiReading, error)
	SaveSample(ticker string, value float64, capturedAt time.Time) error
}

// RsiJob spreads the daily RSI request budget evenly across the
// remaining trading window. Each tick fetches a small batch of the
// stalest watched tickers.
type RsiJob struct {
	store    rsiStore
	calendar *MarketCalendar
	clock    Clock
}

// NewRsiJob creates the RSI polling job
func NewRsiJob(store rsiStore, calendar *MarketCalendar) *RsiJob {
	return &RsiJob{store: store, calendar: calendar, clock: systemClock{}}
}

// WithClock overrides the job's clock, for tests
func (j *RsiJob) WithClock(clock Clock) *RsiJob {
	j.clock = clock
	return j
}

// Run executes one polling tick. Outside the trading window or with
// the budget exhausted it does nothing. A failed fetch consumes no
// budget: only stored samples count against the limit.
func (j *RsiJob) Run() error {
	now := j.clock.Now().In(j.calendar.Location())

	if !j.calendar.IsOpen(now) {
		return nil
	}

	used, err := j.store.CountUsedToday(now)
	if err != nil {
		return err
	}
	if used >= DailyRequestLimit {
		log.Debug().Int64("used", used).Msg("rsi daily budget exhausted")
		return nil
	}

	minutesLeft := j.calendar.MinutesToClose(now)
	if minutesLeft <= 0 {
		return nil
	}

	batch := targetRate(DailyRequestLimit-used, minutesLeft, MaxBatchPerTick)

	candidates, err := j.store.StaleTickers(batch)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	fetched := 0
	for _, ticker := range candidates {
		reading, err := j.store.FetchRSI(ticker)
		if err != nil {
			log.Warn().Str("ticker", ticker).Err(err).Msg("rsi fetch failed")
			continue
		}
		if err := j.store.SaveSample(reading.Ticker, reading.Value, now); err != nil {
			log.Error().Str("ticker", ticker).Err(err).Msg("rsi sample store failed")
			continue
		}
		fetched++
	}

	log.Info().Int("fetched", fetched).Int("batch", batch).
		Int64("used_before", used).Float64("minutes_left", minutesLeft).
		Msg("rsi polling tick complete")
	return nil
}

// targetRate sizes one tick's batch: the remaining budget spread over
// the remaining minutes, rounded up, capped at the per-tick ceiling.
func targetRate(remaining int64, minutesLeft float64, ceiling int) int {
	if remaining <= 0 || minutesLeft <= 0 {
		return 0
	}
	rate := int(math.Ceil(float64(remaining) / minutesLeft))
	if rate > ceiling {
		return ceiling
	}
	return rate
}
