package domain

import "github.com/shopspring/decimal"

// Holding is a user's position in one symbol. AvgPrice is the weighted
// average cost of all buys that built the position; sells reduce Quantity
// without touching it.
type Holding struct {
	ID       int64
	UserID   int64
	Symbol   string
	Quantity decimal.Decimal
	AvgPrice decimal.Decimal
}

// ApplyBuy folds a fill into the position, recomputing the weighted average
// cost at MoneyScale (half-up).
func (h *Holding) ApplyBuy(quantity, price decimal.Decimal) {
	oldCost := h.AvgPrice.Mul(h.Quantity)
	fillCost := price.Mul(quantity)
	newQty := h.Quantity.Add(quantity)
	h.AvgPrice = oldCost.Add(fillCost).DivRound(newQty, MoneyScale)
	h.Quantity = newQty
}

// ApplySell reduces the position by the sold quantity. The average cost is
// deliberately preserved so remaining shares keep their basis.
func (h *Holding) ApplySell(quantity decimal.Decimal) {
	h.Quantity = h.Quantity.Sub(quantity)
}

// IsEmpty reports whether the position has been fully sold off.
func (h *Holding) IsEmpty() bool {
	return h.Quantity.IsZero()
}
