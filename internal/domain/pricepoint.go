package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places kept on derived price figures
// (change, change percent, average cost). Rounding is half-up.
const MoneyScale = 4

// PricePoint is a single OHLCV observation for a symbol.
// Instant is always stored in UTC; presentation timezones are applied on read
// via In() without mutating the stored moment.
type PricePoint struct {
	Symbol        string
	Instant       time.Time
	Open          decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Close         decimal.Decimal
	Volume        int64
	Change        decimal.Decimal
	ChangePercent decimal.Decimal
}

// In returns a copy of the point with Instant projected into loc.
// The underlying instant is unchanged; only the wall-clock view shifts.
func (p PricePoint) In(loc *time.Location) PricePoint {
	if loc == nil {
		return p
	}
	out := p
	out.Instant = p.Instant.In(loc)
	return out
}

// WithChangeFrom fills Change and ChangePercent relative to a reference close.
// A zero reference yields a zero percent rather than a division error.
func (p PricePoint) WithChangeFrom(reference decimal.Decimal) PricePoint {
	out := p
	out.Change = p.Close.Sub(reference).Round(MoneyScale)
	if reference.IsZero() {
		out.ChangePercent = decimal.Zero
		return out
	}
	out.ChangePercent = p.Close.Sub(reference).
		Div(reference).
		Mul(decimal.NewFromInt(100)).
		Round(MoneyScale)
	return out
}
