package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Weekly data constants
const (
	YahooChartAPIURL    = "https://query1.finance.yahoo.com/v8/finance/chart"
	ChartRequestTimeout = 10 * time.Second
)

// Index and sector ETFs summarized in the weekly report
var (
	WeeklyIndices = []string{"SPY", "QQQ", "DIA", "IWM"}
	WeeklySectors = []string{"XLK", "XLF", "XLE", "XLV", "XLY", "XLP", "XLI", "XLU", "XLRE", "XLB", "XLC"}
)

// TickerMove is one close-to-close weekly change
type TickerMove struct {
	Ticker        string  `json:"ticker"`
	ChangePercent float64 `json:"change_percent"`
	CurrentClose  float64 `json:"current_close"`
	PreviousClose float64 `json:"previous_close"`
}

// WeeklyData is the raw material for one weekly report
type WeeklyData struct {
	Indices     []TickerMove `json:"indices"`
	Sectors     []TickerMove `json:"sectors"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// yahooChartResponse is the subset of the chart payload we read
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// WeeklyDataService computes weekly index and sector moves from the
// market data provider's historical chart endpoint.
type WeeklyDataService struct {
	httpClient *http.Client
	baseURL    string
}

// Global weekly data service instance
var GlobalWeeklyDataService *WeeklyDataService

// InitWeeklyDataService initializes the weekly data service
func InitWeeklyDataService() error {
	GlobalWeeklyDataService = NewWeeklyDataService(YahooChartAPIURL)
	log.Info().Msg("Weekly data service initialized")
	return nil
}

// NewWeeklyDataService creates a weekly data service against the given endpoint
func NewWeeklyDataService(baseURL string) *WeeklyDataService {
	return &WeeklyDataService{
		httpClient: &http.Client{Timeout: ChartRequestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// WeeklyChange computes the close-to-close weekly move for one ticker
func (s *WeeklyDataService) WeeklyChange(ticker string) (*TickerMove, error) {
	symbol, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s?range=1mo&interval=1wk", s.baseURL, symbol)
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: chart %s: %v", ErrUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: chart %s: status %d", ErrUnavailable, symbol, resp.StatusCode)
	}

	var payload yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: chart %s: malformed response", ErrUnavailable, symbol)
	}

	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: chart %s: no data", ErrUnavailable, symbol)
	}

	closes := make([]float64, 0)
	for _, c := range payload.Chart.Result[0].Indicators.Quote[0].Close {
		if c != nil {
			closes = append(closes, *c)
		}
	}
	if len(closes) < 2 {
		return nil, fmt.Errorf("%w: chart %s: not enough history", ErrUnavailable, symbol)
	}

	previous := closes[len(closes)-2]
	current := closes[len(closes)-1]
	if previous == 0 {
		return nil, fmt.Errorf("%w: chart %s: zero reference close", ErrUnavailable, symbol)
	}

	return &TickerMove{
		Ticker:        symbol,
		ChangePercent: (current - previous) / previous * 100,
		CurrentClose:  current,
		PreviousClose: previous,
	}, nil
}

// CollectWeeklyData fetches moves for every index and sector ETF.
// Tickers that fail are skipped; the report works with what it got.
func (s *WeeklyDataService) CollectWeeklyData() *WeeklyData {
	data := &WeeklyData{GeneratedAt: time.Now()}

	for _, ticker := range WeeklyIndices {
		move, err := s.WeeklyChange(ticker)
		if err != nil {
			log.Warn().Str("ticker", ticker).Err(err).Msg("weekly index move unavailable")
			continue
		}
		data.Indices = append(data.Indices, *move)
	}

	for _, ticker := range WeeklySectors {
		move, err := s.WeeklyChange(ticker)
		if err != nil {
			log.Warn().Str("ticker", ticker).Err(err).Msg("weekly sector move unavailable")
			continue
		}
		data.Sectors = append(data.Sectors, *move)
	}

	return data
}
