package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an append-only ledger entry recording an executed trade.
// HoldingID is nil when the fill closed the position out entirely.
type Transaction struct {
	ID            int64
	UserID        int64
	HoldingID     *int64
	Type          TransactionType
	Symbol        string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	TotalAmount   decimal.Decimal
	ExecutionTime time.Time
}
