package ports

import "paperTrader/internal/domain"

// PriceListener receives price updates published by the sync engine.
// OnPriceUpdate is called from the publishing goroutine and must not block.
type PriceListener interface {
	OnPriceUpdate(p domain.PricePoint)
}
