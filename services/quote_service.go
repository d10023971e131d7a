package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"finz_backend/models"

	"github.com/rs/zerolog/log"
)

// Quote service constants
const (
	YahooQuoteAPIURL    = "https://query1.finance.yahoo.com/v7/finance/quote"
	QuoteRequestTimeout = 5 * time.Second
)

// ErrUnavailable marks a quote that could not be fetched this cycle.
// Callers skip the affected rule and retry on the next cycle; it is
// never fatal.
var ErrUnavailable = errors.New("market data unavailable")

// ErrInvalidTicker marks input rejected before any upstream call
var ErrInvalidTicker = errors.New("invalid ticker")

// YahooQuoteResponse represents the quote API response
type YahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol              string  `json:"symbol"`
			RegularMarketPrice  float64 `json:"regularMarketPrice"`
			RegularMarketVolume float64 `json:"regularMarketVolume"`
			RegularMarketOpen   float64 `json:"regularMarketOpen"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"quoteResponse"`
}

// QuoteSnapshot holds the fields of one quote result
type QuoteSnapshot struct {
	Ticker string  `json:"ticker"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Open   float64 `json:"open"`
}

// QuoteService fetches current quote data from the market data provider
type QuoteService struct {
	httpClient *http.Client
	baseURL    string
}

// Global quote service instance
var GlobalQuoteService *QuoteService

// InitQuoteService initializes the quote service
func InitQuoteService() error {
	GlobalQuoteService = NewQuoteService(YahooQuoteAPIURL, QuoteRequestTimeout)
	log.Info().Msg("Quote service initialized")
	return nil
}

// NewQuoteService creates a quote service against the given endpoint
func NewQuoteService(baseURL string, timeout time.Duration) *QuoteService {
	if timeout <= 0 {
		timeout = QuoteRequestTimeout
	}
	return &QuoteService{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// GetQuote fetches the full quote for a ticker. Transient upstream
// failures (timeout, non-200, malformed payload, unknown symbol) are
// all mapped to ErrUnavailable.
func (s *QuoteService) GetQuote(ticker string) (*QuoteSnapshot, error) {
	symbol, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s?symbols=%s", s.baseURL, symbol)
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrUnavailable, symbol, resp.StatusCode)
	}

	var payload YahooQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %s: malformed response", ErrUnavailable, symbol)
	}

	if len(payload.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("%w: %s: no quote data", ErrUnavailable, symbol)
	}

	result := payload.QuoteResponse.Result[0]
	return &QuoteSnapshot{
		Ticker: symbol,
		Price:  result.RegularMarketPrice,
		Volume: result.RegularMarketVolume,
		Open:   result.RegularMarketOpen,
	}, nil
}

// GetQuoteField fetches a single quote field for a ticker
func (s *QuoteService) GetQuoteField(ticker string, field models.AlertField) (float64, error) {
	quote, err := s.GetQuote(ticker)
	if err != nil {
		return 0, err
	}

	switch field {
	case models.FieldPrice:
		return quote.Price, nil
	case models.FieldVolume:
		return quote.Volume, nil
	default:
		return 0, fmt.Errorf("unknown quote field %q", field)
	}
}

// NormalizeTicker uppercases and validates a ticker symbol
func NormalizeTicker(ticker string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	if symbol == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrInvalidTicker)
	}
	return symbol, nil
}
