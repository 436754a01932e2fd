package marketcal

import (
	"context"

	"paperTrader/internal/ports"
)

// Chained consults the primary calendar first and falls back to the
// secondary when the primary errors, so sweep gates keep working through
// upstream outages.
type Chained struct {
	Primary  ports.MarketCalendar
	Fallback ports.MarketCalendar
	Logger   ports.Logger
}

func (c *Chained) IsOpen(ctx context.Context) (bool, error) {
	open, err := c.Primary.IsOpen(ctx)
	if err == nil {
		return open, nil
	}
	if c.Logger != nil {
		c.Logger.Warn(ctx, "primary market clock failed, using local calendar", map[string]interface{}{"error": err.Error()})
	}
	return c.Fallback.IsOpen(ctx)
}

func (c *Chained) Clock(ctx context.Context) (ports.MarketClock, error) {
	clock, err := c.Primary.Clock(ctx)
	if err == nil {
		return clock, nil
	}
	if c.Logger != nil {
		c.Logger.Warn(ctx, "primary market clock failed, using local calendar", map[string]interface{}{"error": err.Error()})
	}
	return c.Fallback.Clock(ctx)
}
