package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the immutable record of one settlement. Append-only; rows are
// never updated after creation.
type Trade struct {
	ID          string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	BuyerID     string `gorm:"index;type:varchar(36);not null" json:"buyer_id"`
	SellerID    string `gorm:"index;type:varchar(36);not null" json:"seller_id"`
	BuyOrderID  string `gorm:"type:varchar(36);not null" json:"buy_order_id"`
	SellOrderID string `gorm:"type:varchar(36);not null" json:"sell_order_id"`
	Symbol      string `gorm:"index:idx_trade_symbol_created,priority:1;type:varchar(10);not null" json:"symbol"`

	Price      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"price"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	TotalValue decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"total_value"`
	Commission decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"commission"`

	CreatedAt time.Time `gorm:"index:idx_trade_symbol_created,priority:2" json:"created_at"`
}

// CalculateCommission returns the platform fee for a trade of the given
// total value, at the fixed rate, truncated to 8 decimal places.
func CalculateCommission(totalValue decimal.Decimal) decimal.Decimal {
	return MulFixed(totalValue, CommissionRate)
}
