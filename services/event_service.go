package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finz_backend/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Event calendar constants
const (
	FinnhubEarningsAPIURL  = "https://finnhub.io/api/v1/calendar/earnings"
	EventRequestTimeout    = 10 * time.Second
	EarningsLookaheadDays  = 60
	UserEventsWindowDays   = 7
	EventDescriptionMaxLen = 200
)

// finnhubEarningsResponse is the provider payload
type finnhubEarningsResponse struct {
	EarningsCalendar []struct {
		Date   string `json:"date"`
		Symbol string `json:"symbol"`
	} `json:"earningsCalendar"`
}

// UserEvents is the calendar view for one user: macro events for
// everyone plus earnings for the tickers the user has alerts on.
type UserEvents struct {
	Macro   []models.EconomicEvent `json:"macro"`
	Micro   []models.EconomicEvent `json:"micro"`
	Tickers []string               `json:"tickers"`
}

// EventService syncs the economic calendar and serves per-user views
type EventService struct {
	db         *gorm.DB
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Global event service instance
var GlobalEventService *EventService

// InitEventService initializes the event service
func InitEventService(db *gorm.DB, apiKey string) error {
	if apiKey == "" {
		log.Warn().Msg("CALENDAR_API_KEY not set, event sync disabled")
	}
	GlobalEventService = NewEventService(db, FinnhubEarningsAPIURL, apiKey)
	log.Info().Msg("Event service initialized")
	return nil
}

// NewEventService creates an event service against the given endpoint
func NewEventService(db *gorm.DB, baseURL, apiKey string) *EventService {
	return &EventService{
		db:         db,
		httpClient: &http.Client{Timeout: EventRequestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// ActiveAlertTickers returns the distinct tickers across all active
// alerts, any user. Earnings are only synced for these.
func (s *EventService) ActiveAlertTickers() ([]string, error) {
	set := make(map[string]bool)

	for _, model := range []interface{}{
		&models.SimpleAlert{}, &models.RangeAlert{},
		&models.PercentAlert{}, &models.CompositeAlert{},
	} {
		var tickers []string
		err := s.db.Model(model).
			Distinct("ticker").
			Where("active = ?", true).
			Pluck("ticker", &tickers).Error
		if err != nil {
			return nil, err
		}
		for _, t := range tickers {
			set[t] = true
		}
	}

	tickers := make([]string, 0, len(set))
	for t := range set {
		tickers = append(tickers, t)
	}
	return tickers, nil
}

// SyncEarnings pulls upcoming earnings dates for every ticker with an
// active alert and stores the new ones. Returns the number created.
// A ticker whose fetch fails is skipped; sync is best-effort.
func (s *EventService) SyncEarnings() (int, error) {
	if s.apiKey == "" {
		return 0, nil
	}

	tickers, err := s.ActiveAlertTickers()
	if err != nil {
		return 0, fmt.Errorf("load alert tickers: %w", err)
	}
	if len(tickers) == 0 {
		return 0, nil
	}

	created := 0
	today := time.Now()

	for _, ticker := range tickers {
		entries, err := s.fetchEarnings(ticker, today)
		if err != nil {
			log.Warn().Str("ticker", ticker).Err(err).Msg("earnings fetch failed")
			continue
		}

		for _, date := range entries {
			exists, err := s.eventExists(date, ticker, models.EventEarnings)
			if err != nil {
				return created, err
			}
			if exists {
				continue
			}

			event := models.EconomicEvent{
				Date:        date,
				Ticker:      ticker,
				Type:        models.EventEarnings,
				Description: truncate(fmt.Sprintf("%s Earnings Report", ticker), EventDescriptionMaxLen),
				Impact:      models.ImpactHigh,
			}
			if err := s.db.Create(&event).Error; err != nil {
				return created, err
			}
			created++
		}
	}

	log.Info().Int("created", created).Int("tickers", len(tickers)).Msg("earnings sync complete")
	return created, nil
}

// fetchEarnings returns the upcoming earnings dates for one ticker
func (s *EventService) fetchEarnings(ticker string, from time.Time) ([]time.Time, error) {
	params := url.Values{}
	params.Set("token", s.apiKey)
	params.Set("symbol", ticker)
	params.Set("from", from.Format("2006-01-02"))
	params.Set("to", from.AddDate(0, 0, EarningsLookaheadDays).Format("2006-01-02"))

	resp, err := s.httpClient.Get(s.baseURL + "?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("%w: earnings %s: %v", ErrUnavailable, ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: earnings %s: status %d", ErrUnavailable, ticker, resp.StatusCode)
	}

	var payload finnhubEarningsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: earnings %s: malformed response", ErrUnavailable, ticker)
	}

	dates := make([]time.Time, 0, len(payload.EarningsCalendar))
	for _, entry := range payload.EarningsCalendar {
		date, err := time.Parse("2006-01-02", entry.Date)
		if err != nil {
			continue
		}
		dates = append(dates, date)
	}
	return dates, nil
}

// eventExists reports whether an identical calendar entry is stored
func (s *EventService) eventExists(date time.Time, ticker string, eventType models.EventType) (bool, error) {
	var count int64
	err := s.db.Model(&models.EconomicEvent{}).
		Where("date = ? AND ticker = ? AND type = ?", date, ticker, eventType).
		Count(&count).Error
	return count > 0, err
}

// EventsForUser returns the next week's events split into macro (no
// ticker, shown to everyone) and micro (earnings on the user's alerted
// tickers).
func (s *EventService) EventsForUser(userID uint) (*UserEvents, error) {
	tickers, err := s.userAlertTickers(userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	limit := dayStart.AddDate(0, 0, UserEventsWindowDays)

	var events []models.EconomicEvent
	query := s.db.Where("date >= ? AND date <= ?", dayStart, limit).Order("date")
	if len(tickers) > 0 {
		query = query.Where("ticker = '' OR ticker IN ?", tickers)
	} else {
		query = query.Where("ticker = ''")
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}

	out := &UserEvents{
		Macro:   []models.EconomicEvent{},
		Micro:   []models.EconomicEvent{},
		Tickers: tickers,
	}
	for _, e := range events {
		if e.Ticker == "" {
			out.Macro = append(out.Macro, e)
		} else {
			out.Micro = append(out.Micro, e)
		}
	}
	return out, nil
}

// userAlertTickers returns the distinct tickers of one user's active alerts
func (s *EventService) userAlertTickers(userID uint) ([]string, error) {
	set := make(map[string]bool)

	for _, model := range []interface{}{
		&models.SimpleAlert{}, &models.RangeAlert{},
		&models.PercentAlert{}, &models.CompositeAlert{},
	} {
		var tickers []string
		err := s.db.Model(model).
			Distinct("ticker").
			Where("user_id = ? AND active = ?", userID, true).
			Pluck("ticker", &tickers).Error
		if err != nil {
			return nil, err
		}
		for _, t := range tickers {
			set[t] = true
		}
	}

	tickers := make([]string, 0, len(set))
	for t := range set {
		tickers = append(tickers, t)
	}
	return tickers, nil
}

// truncate clips a string to max runes
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
