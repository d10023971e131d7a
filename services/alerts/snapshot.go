package alerts

import (
	"finz_backend/models"

	"github.com/rs/zerolog/log"
)

// QuoteSource resolves a quote field for a ticker. A failed lookup is
// reported as an error; the snapshot remembers the miss for the rest of
// the cycle.
type QuoteSource interface {
	GetQuoteField(ticker string, field models.AlertField) (float64, error)
}

// FieldKey identifies one memoized market value
type FieldKey struct {
	Ticker string
	Field  models.AlertField
}

// Snapshot memoizes market values for a single evaluation cycle. Each
// (ticker, field) pair is fetched at most once per cycle, hits and
// misses alike.
type Snapshot struct {
	source QuoteSource
	values map[FieldKey]float64
	misses map[FieldKey]bool
}

// NewSnapshot creates an empty snapshot over the given source
func NewSnapshot(source QuoteSource) *Snapshot {
	return &Snapshot{
		source: source,
		values: make(map[FieldKey]float64),
		misses: make(map[FieldKey]bool),
	}
}

// Value resolves a (ticker, field) pair, fetching on first use.
// ok is false when the value is unavailable this cycle.
func (s *Snapshot) Value(ticker string, field models.AlertField) (float64, bool) {
	key := FieldKey{Ticker: ticker, Field: field}

	if v, hit := s.values[key]; hit {
		return v, true
	}
	if s.misses[key] {
		return 0, false
	}

	v, err := s.source.GetQuoteField(ticker, field)
	if err != nil {
		log.Debug().Str("ticker", ticker).Str("field", field.String()).Err(err).
			Msg("quote unavailable this cycle")
		s.misses[key] = true
		return 0, false
	}

	s.values[key] = v
	return v, true
}

// Size returns the number of resolved keys (hits and misses)
func (s *Snapshot) Size() int {
	return len(s.values) + len(s.misses)
}
