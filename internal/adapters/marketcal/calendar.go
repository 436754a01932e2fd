// Package marketcal provides a locally computed trading calendar used when
// the upstream market clock is unreachable.
package marketcal

import (
	"context"
	"time"

	"github.com/scmhub/calendar"

	"paperTrader/internal/ports"
)

const (
	openHour, openMinute = 9, 30
	closeHour            = 16
)

// Calendar implements ports.MarketCalendar from exchange holiday data, with
// a plain Mon-Fri 09:30-16:00 New York session when the holiday calendar for
// the MIC cannot be loaded.
type Calendar struct {
	cal      *calendar.Calendar
	loc      *time.Location
	fallback bool

	// now is swapped out in tests
	now func() time.Time
}

// New loads the calendar for the given MIC (ISO 10383), defaulting to NYSE.
func New(mic string) *Calendar {
	if mic == "" {
		mic = "xnys"
	}
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		cal = calendar.GetCalendar("xnys")
	}
	if cal == nil {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.UTC
		}
		return &Calendar{fallback: true, loc: loc, now: time.Now}
	}
	return &Calendar{cal: cal, loc: cal.Loc, now: time.Now}
}

// IsOpen reports whether the regular session is trading right now.
func (c *Calendar) IsOpen(_ context.Context) (bool, error) {
	return c.isOpenAt(c.now()), nil
}

// Clock returns the session snapshot, scanning forward for the next
// transition. Minute resolution is plenty for a sweep gate.
func (c *Calendar) Clock(_ context.Context) (ports.MarketClock, error) {
	now := c.now().In(c.loc)
	clock := ports.MarketClock{IsOpen: c.isOpenAt(now)}

	// scan up to two weeks out; every exchange trades within that horizon
	t := now.Truncate(time.Minute)
	horizon := t.Add(14 * 24 * time.Hour)
	open := clock.IsOpen
	for cursor := t; cursor.Before(horizon); cursor = cursor.Add(time.Minute) {
		state := c.isOpenAt(cursor)
		if state != open {
			if state {
				clock.NextOpen = cursor
				if !clock.NextClose.IsZero() {
					return clock, nil
				}
			} else {
				clock.NextClose = cursor
				if !clock.NextOpen.IsZero() {
					return clock, nil
				}
			}
			open = state
		}
	}
	return clock, nil
}

func (c *Calendar) isOpenAt(t time.Time) bool {
	t = t.In(c.loc)
	if c.fallback {
		wd := t.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			return false
		}
		h, m := t.Hour(), t.Minute()
		return (h > openHour || (h == openHour && m >= openMinute)) && h < closeHour
	}
	return c.cal.IsOpen(t)
}

// IsTradingDay reports whether the exchange trades at all on the given date.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	date = date.In(c.loc)
	if c.fallback {
		wd := date.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return c.cal.IsBusinessDay(date)
}
