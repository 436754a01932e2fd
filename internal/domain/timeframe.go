package domain

import (
	"fmt"
	"time"
)

// Timeframe is a chart window selector. Each timeframe fixes the upstream bar
// resolution it is fetched at, the lookback span, how long a derived series
// stays fresh, and whether the series is restricted to regular trading hours.
type Timeframe string

const (
	Timeframe1D Timeframe = "1d"
	Timeframe1W Timeframe = "1w"
	Timeframe1M Timeframe = "1m"
	Timeframe3M Timeframe = "3m"
	Timeframe1Y Timeframe = "1y"
	Timeframe5Y Timeframe = "5y"
)

type timeframeSpec struct {
	barSize   string        // upstream bar resolution
	ttl       time.Duration // derived-series freshness window
	lookback  func(end time.Time) time.Time
	intraday  bool          // clip to the regular trading session
	endOffset time.Duration // pulled back from now before fetching
}

var timeframeSpecs = map[Timeframe]timeframeSpec{
	Timeframe1D: {
		barSize:  "5Min",
		ttl:      2 * time.Minute,
		lookback: func(end time.Time) time.Time { return end.AddDate(0, 0, -1) },
		intraday: true,
	},
	Timeframe1W: {
		barSize:  "30Min",
		ttl:      5 * time.Minute,
		lookback: func(end time.Time) time.Time { return end.AddDate(0, 0, -7) },
		intraday: true,
	},
	Timeframe1M: {
		barSize:  "2Hour",
		ttl:      15 * time.Minute,
		lookback: func(end time.Time) time.Time { return end.AddDate(0, -1, 0) },
	},
	Timeframe3M: {
		barSize:  "12Hour",
		ttl:      30 * time.Minute,
		lookback: func(end time.Time) time.Time { return end.AddDate(0, -3, 0) },
	},
	Timeframe1Y: {
		barSize:  "1Day",
		ttl:      time.Hour,
		lookback: func(end time.Time) time.Time { return end.AddDate(-1, 0, 0) },
	},
	Timeframe5Y: {
		barSize:  "1Week",
		ttl:      2 * time.Hour,
		lookback: func(end time.Time) time.Time { return end.AddDate(-5, 0, 0) },
		// weekly bars are only published for fully settled data
		endOffset: 72 * time.Hour,
	},
}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeSpecs[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// BarSize is the upstream bar resolution the timeframe is fetched at.
func (tf Timeframe) BarSize() string { return timeframeSpecs[tf].barSize }

// TTL is how long a derived series for this timeframe stays fresh.
func (tf Timeframe) TTL() time.Duration { return timeframeSpecs[tf].ttl }

// Intraday reports whether the series should be clipped to regular
// trading hours.
func (tf Timeframe) Intraday() bool { return timeframeSpecs[tf].intraday }

// Range computes the [start, end] fetch window ending at now.
func (tf Timeframe) Range(now time.Time) (start, end time.Time) {
	spec := timeframeSpecs[tf]
	end = now.Add(-spec.endOffset)
	return spec.lookback(end), end
}

// Timeframes lists every supported value in display order.
func Timeframes() []Timeframe {
	return []Timeframe{Timeframe1D, Timeframe1W, Timeframe1M, Timeframe3M, Timeframe1Y, Timeframe5Y}
}
