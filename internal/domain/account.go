package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds a user's fiat balance. Balance is mutated only inside a
// transaction that also locks the row.
type Account struct {
	ID        string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string          `json:"name"`
	Email     string          `gorm:"uniqueIndex;type:varchar(120)" json:"email"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HasEnoughBalance reports whether the account can afford the given cost.
func (a *Account) HasEnoughBalance(cost decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(cost)
}

// AssetHolding is one account's position in one symbol, split into the
// freely spendable part and the part reserved for open sell orders.
// Invariant: Available + Locked equals the account's true total holdings.
type AssetHolding struct {
	ID        string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccountID string          `gorm:"uniqueIndex:idx_holding_account_symbol,priority:1;type:varchar(36);not null" json:"account_id"`
	Symbol    string          `gorm:"uniqueIndex:idx_holding_account_symbol,priority:2;type:varchar(10);not null" json:"symbol"`
	Available decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"available"`
	Locked    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"locked"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TotalAmount returns available + locked.
func (h *AssetHolding) TotalAmount() decimal.Decimal {
	return h.Available.Add(h.Locked)
}

// HasEnoughAvailable reports whether the holding can cover a sell of amount.
func (h *AssetHolding) HasEnoughAvailable(amount decimal.Decimal) bool {
	return h.Available.GreaterThanOrEqual(amount)
}

// LockAmount moves amount from available to locked.
func (h *AssetHolding) LockAmount(amount decimal.Decimal) {
	h.Available = h.Available.Sub(amount)
	h.Locked = h.Locked.Add(amount)
}

// UnlockAmount moves amount back from locked to available. Exact inverse
// of LockAmount.
func (h *AssetHolding) UnlockAmount(amount decimal.Decimal) {
	h.Locked = h.Locked.Sub(amount)
	h.Available = h.Available.Add(amount)
}

// SubtractLocked removes settled quantity from the locked portion.
func (h *AssetHolding) SubtractLocked(amount decimal.Decimal) {
	h.Locked = h.Locked.Sub(amount)
}

// AddAvailable credits settled quantity to the available portion.
func (h *AssetHolding) AddAvailable(amount decimal.Decimal) {
	h.Available = h.Available.Add(amount)
}
