package services

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"finz_backend/models"
)

func quoteServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetQuoteSuccess(t *testing.T) {
	srv := quoteServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbols"); got != "AAPL" {
			t.Errorf("symbols param = %q, want AAPL", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"quoteResponse":{"result":[{"symbol":"AAPL","regularMarketPrice":234.5,"regularMarketVolume":1000000,"regularMarketOpen":230.1}],"error":null}}`))
	})

	svc := NewQuoteService(srv.URL, time.Second)
	quote, err := svc.GetQuote("aapl")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if quote.Ticker != "AAPL" || quote.Price != 234.5 || quote.Volume != 1000000 {
		t.Fatalf("unexpected quote %+v", quote)
	}
}

func TestGetQuoteUpstreamFailuresMapToUnavailable(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"non-200": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		},
		"empty result": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"quoteResponse":{"result":[],"error":null}}`))
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := quoteServer(t, handler)
			svc := NewQuoteService(srv.URL, time.Second)

			_, err := svc.GetQuote("AAPL")
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("expected ErrUnavailable, got %v", err)
			}
		})
	}
}

func TestGetQuoteConnectionErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // force a connection failure

	svc := NewQuoteService(srv.URL, time.Second)
	if _, err := svc.GetQuote("AAPL"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestGetQuoteField(t *testing.T) {
	srv := quoteServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quoteResponse":{"result":[{"symbol":"AAPL","regularMarketPrice":234.5,"regularMarketVolume":42,"regularMarketOpen":230.1}],"error":null}}`))
	})

	svc := NewQuoteService(srv.URL, time.Second)

	price, err := svc.GetQuoteField("AAPL", models.FieldPrice)
	if err != nil || price != 234.5 {
		t.Fatalf("price = %v, %v", price, err)
	}
	volume, err := svc.GetQuoteField("AAPL", models.FieldVolume)
	if err != nil || volume != 42 {
		t.Fatalf("volume = %v, %v", volume, err)
	}
}

func TestNormalizeTicker(t *testing.T) {
	symbol, err := NormalizeTicker("  msft ")
	if err != nil || symbol != "MSFT" {
		t.Fatalf("NormalizeTicker = %q, %v", symbol, err)
	}

	if _, err := NormalizeTicker("   "); !errors.Is(err, ErrInvalidTicker) {
		t.Fatalf("blank ticker must be rejected, got %v", err)
	}
}
