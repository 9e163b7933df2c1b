package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"

	OrderStatusOpen      = "open"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
)

// Order is a limit order. Amount is fixed at creation and never
// decremented; there are no partial fills. Exactly one of LockedFiat
// (buy) or LockedAsset (sell) is set, recording the reservation taken at
// placement so cancellation can release it.
type Order struct {
	ID        string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccountID string          `gorm:"index:idx_order_account_status,priority:1;type:varchar(36);not null" json:"account_id"`
	Symbol    string          `gorm:"index:idx_order_match,priority:1;type:varchar(10);not null" json:"symbol"`
	Side      string          `gorm:"index:idx_order_match,priority:2;type:varchar(4);not null" json:"side"`
	Price     decimal.Decimal `gorm:"index:idx_order_match,priority:4;type:decimal(20,8);not null" json:"price"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Status    string          `gorm:"index:idx_order_match,priority:3;index:idx_order_account_status,priority:2;type:varchar(10);not null" json:"status"`

	LockedFiat  decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"locked_fiat"`
	LockedAsset decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"locked_asset"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusOpen
}

func (o *Order) IsBuy() bool {
	return o.Side == SideBuy
}

func (o *Order) IsSell() bool {
	return o.Side == SideSell
}

// TotalValue returns price × amount at the order's own limit price.
func (o *Order) TotalValue() decimal.Decimal {
	return MulFixed(o.Price, o.Amount)
}
