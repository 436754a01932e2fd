package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType distinguishes how an order is priced.
type OrderType string

const (
	Market OrderType = "MARKET" // priced at the current market quote
	Limit  OrderType = "LIMIT"  // priced at a caller-supplied threshold
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending  OrderStatus = "PENDING"
	StatusExecuted OrderStatus = "EXECUTED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusFailed   OrderStatus = "FAILED"
)

// TransactionType mirrors the side of the trade that produced a ledger entry.
type TransactionType string

const (
	TxBuy  TransactionType = "BUY"
	TxSell TransactionType = "SELL"
)
