package domain

import "github.com/shopspring/decimal"

// DefaultStartingCash is the balance seeded on new accounts.
var DefaultStartingCash = decimal.NewFromFloat(10000.00)

// User is a trading account. Only the fields the execution path needs are
// modeled; authentication lives elsewhere.
type User struct {
	ID          int64
	Username    string
	CashBalance decimal.Decimal
}

// CanAfford reports whether the account holds enough cash for a debit.
func (u *User) CanAfford(amount decimal.Decimal) bool {
	return u.CashBalance.GreaterThanOrEqual(amount)
}

// Debit removes cash from the balance.
func (u *User) Debit(amount decimal.Decimal) {
	u.CashBalance = u.CashBalance.Sub(amount)
}

// Credit adds cash to the balance.
func (u *User) Credit(amount decimal.Decimal) {
	u.CashBalance = u.CashBalance.Add(amount)
}
