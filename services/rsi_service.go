package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"finz_backend/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// RSI service constants
const (
	TwelveDataRsiAPIURL = "https://api.twelvedata.com/rsi"
	RsiRequestTimeout   = 10 * time.Second
	RsiFreshnessWindow  = 10 * time.Minute
)

// Watch management errors
var (
	ErrAlreadyWatching = errors.New("ticker already watched")
	ErrNotWatching     = errors.New("ticker not watched")
)

// RsiReading is one RSI value fetched from the upstream provider
type RsiReading struct {
	Ticker     string    `json:"ticker"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
	Signal     string    `json:"signal"`
}

// RsiStatus is the cached view served to clients, with freshness info
type RsiStatus struct {
	Ticker     string     `json:"ticker"`
	Value      *float64   `json:"value"`
	CapturedAt *time.Time `json:"captured_at"`
	Signal     string     `json:"signal,omitempty"`
	Fresh      bool       `json:"fresh"`
}

// twelveDataRsiResponse represents the provider payload
type twelveDataRsiResponse struct {
	Values []struct {
		Datetime string `json:"datetime"`
		Rsi      string `json:"rsi"`
	} `json:"values"`
	Status string `json:"status"`
}

// RsiService fetches RSI readings and manages samples and watches
type RsiService struct {
	db         *gorm.DB
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Global RSI service instance
var GlobalRsiService *RsiService

// InitRsiService initializes the RSI service
func InitRsiService(db *gorm.DB, apiKey string) error {
	GlobalRsiService = NewRsiService(db, TwelveDataRsiAPIURL, apiKey)
	log.Info().Msg("RSI service initialized")
	return nil
}

// NewRsiService creates an RSI service against the given endpoint
func NewRsiService(db *gorm.DB, baseURL, apiKey string) *RsiService {
	return &RsiService{
		db:         db,
		httpClient: &http.Client{Timeout: RsiRequestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// FetchRSI fetches the current 14-period daily RSI for a ticker.
// Upstream failures are mapped to ErrUnavailable.
func (s *RsiService) FetchRSI(ticker string) (*RsiReading, error) {
	symbol, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "1day")
	params.Set("time_period", "14")
	params.Set("apikey", s.apiKey)

	resp, err := s.httpClient.Get(s.baseURL + "?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("%w: rsi %s: %v", ErrUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: rsi %s: status %d", ErrUnavailable, symbol, resp.StatusCode)
	}

	var payload twelveDataRsiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: rsi %s: malformed response", ErrUnavailable, symbol)
	}

	if len(payload.Values) == 0 {
		return nil, fmt.Errorf("%w: rsi %s: no values", ErrUnavailable, symbol)
	}

	latest := payload.Values[0]
	value, err := strconv.ParseFloat(latest.Rsi, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: rsi %s: bad value %q", ErrUnavailable, symbol, latest.Rsi)
	}

	observedAt, err := time.Parse("2006-01-02", latest.Datetime)
	if err != nil {
		observedAt = time.Now()
	}

	return &RsiReading{
		Ticker:     symbol,
		Value:      value,
		ObservedAt: observedAt,
		Signal:     RsiSignal(value),
	}, nil
}

// RsiSignal classifies an RSI value
func RsiSignal(value float64) string {
	switch {
	case value > 70:
		return "overbought"
	case value > 60:
		return "approaching overbought"
	case value < 30:
		return "oversold"
	case value < 40:
		return "approaching oversold"
	default:
		return "neutral"
	}
}

// SaveSample appends one immutable RSI sample. The append is what
// consumes one unit of the daily request budget.
func (s *RsiService) SaveSample(ticker string, value float64, capturedAt time.Time) error {
	sample := models.RsiSample{Ticker: ticker, Value: value, CapturedAt: capturedAt}
	return s.db.Create(&sample).Error
}

// CountUsedToday returns the number of samples captured on the local
// day containing now, i.e. upstream calls already spent today.
func (s *RsiService) CountUsedToday(now time.Time) (int64, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var count int64
	err := s.db.Model(&models.RsiSample{}).
		Where("captured_at >= ?", dayStart).
		Count(&count).Error
	return count, err
}

// StaleTickers selects up to limit watched tickers ordered stalest
// first: tickers with no sample at all come before any sampled ticker,
// then by oldest last sample; ties break by symbol for determinism.
func (s *RsiService) StaleTickers(limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	tickers, err := s.WatchedTickers()
	if err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, nil
	}

	var lasts []models.RsiSample
	err = s.db.
		Where("ticker IN ?", tickers).
		Where("captured_at = (SELECT MAX(s2.captured_at) FROM rsi_samples s2 WHERE s2.ticker = rsi_samples.ticker)").
		Find(&lasts).Error
	if err != nil {
		return nil, err
	}

	lastByTicker := make(map[string]time.Time, len(lasts))
	for _, l := range lasts {
		lastByTicker[l.Ticker] = l.CapturedAt
	}

	sort.Slice(tickers, func(i, j int) bool {
		ti, iOk := lastByTicker[tickers[i]]
		tj, jOk := lastByTicker[tickers[j]]
		if iOk != jOk {
			return !iOk // never-sampled sorts first
		}
		if iOk && !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return tickers[i] < tickers[j]
	})

	if len(tickers) > limit {
		tickers = tickers[:limit]
	}
	return tickers, nil
}

// WatchedTickers returns the distinct tickers any user follows
func (s *RsiService) WatchedTickers() ([]string, error) {
	var tickers []string
	err := s.db.Model(&models.TickerWatch{}).
		Distinct("ticker").
		Order("ticker").
		Pluck("ticker", &tickers).Error
	return tickers, err
}

// Follow adds a ticker to the user's RSI watches
func (s *RsiService) Follow(userID uint, ticker string) (*models.TickerWatch, error) {
	symbol, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}

	var existing models.TickerWatch
	err = s.db.Where("user_id = ? AND ticker = ?", userID, symbol).First(&existing).Error
	if err == nil {
		return nil, ErrAlreadyWatching
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	watch := models.TickerWatch{UserID: userID, Ticker: symbol}
	if err := s.db.Create(&watch).Error; err != nil {
		return nil, err
	}
	return &watch, nil
}

// Unfollow removes a ticker from the user's RSI watches
func (s *RsiService) Unfollow(userID uint, ticker string) error {
	symbol, err := NormalizeTicker(ticker)
	if err != nil {
		return err
	}

	result := s.db.Where("user_id = ? AND ticker = ?", userID, symbol).
		Delete(&models.TickerWatch{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotWatching
	}
	return nil
}

// ListWatches returns all of a user's watches
func (s *RsiService) ListWatches(userID uint) ([]models.TickerWatch, error) {
	var watches []models.TickerWatch
	err := s.db.Where("user_id = ?", userID).Order("ticker").Find(&watches).Error
	return watches, err
}

// LatestStatus returns the newest stored sample for a ticker with a
// freshness flag; stale values are withheld rather than served.
func (s *RsiService) LatestStatus(ticker string, maxAge time.Duration) (*RsiStatus, error) {
	symbol, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	if maxAge <= 0 {
		maxAge = RsiFreshnessWindow
	}

	status := &RsiStatus{Ticker: symbol}

	var sample models.RsiSample
	err = s.db.Where("ticker = ?", symbol).
		Order("captured_at DESC").
		First(&sample).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return status, nil
	}
	if err != nil {
		return nil, err
	}

	if time.Since(sample.CapturedAt) < maxAge {
		status.Value = &sample.Value
		status.CapturedAt = &sample.CapturedAt
		status.Signal = RsiSignal(sample.Value)
		status.Fresh = true
	}
	return status, nil
}
