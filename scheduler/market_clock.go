package scheduler

import (
	"fmt"
	"time"
)

// Market window constants. The US session observed from Buenos Aires
// runs 11:30 to 18:00 local time, weekdays only.
const (
	DefaultMarketTimezone = "America/Argentina/Buenos_Aires"
	MarketOpenHour        = 11
	MarketOpenMinute      = 30
	MarketCloseHour       = 18
	MarketCloseMinute     = 0
)

// Clock abstracts time.Now for deterministic tests
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// MarketCalendar answers trading-window questions in the market's
// local timezone.
type MarketCalendar struct {
	loc *time.Location
}

// NewMarketCalendar loads the calendar for the given IANA timezone
func NewMarketCalendar(timezone string) (*MarketCalendar, error) {
	if timezone == "" {
		timezone = DefaultMarketTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load market timezone %q: %w", timezone, err)
	}
	return &MarketCalendar{loc: loc}, nil
}

// Location returns the market's timezone
func (c *MarketCalendar) Location() *time.Location {
	return c.loc
}

// IsOpen reports whether the trading window is open at the given
// instant. The window is closed-open: 11:30:00 counts, 18:00:00 does
// not, so a tick landing exactly on the close never runs.
func (c *MarketCalendar) IsOpen(at time.Time) bool {
	local := at.In(c.loc)

	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}

	open := time.Date(local.Year(), local.Month(), local.Day(),
		MarketOpenHour, MarketOpenMinute, 0, 0, c.loc)
	close := c.CloseTime(local)

	return !local.Before(open) && local.Before(close)
}

// CloseTime returns today's closing instant for the given time's day
func (c *MarketCalendar) CloseTime(at time.Time) time.Time {
	local := at.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(),
		MarketCloseHour, MarketCloseMinute, 0, 0, c.loc)
}

// MinutesToClose returns the minutes remaining until today's close.
// Zero or negative means the window has closed.
func (c *MarketCalendar) MinutesToClose(at time.Time) float64 {
	return c.CloseTime(at).Sub(at.In(c.loc)).Minutes()
}
