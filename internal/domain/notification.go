package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HoldingSnapshot is one symbol's position as shown to a participant after
// settlement.
type HoldingSnapshot struct {
	Symbol    string          `json:"symbol"`
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
}

// SettlementNotification is sent once per participant per trade. Side is
// from the recipient's perspective.
type SettlementNotification struct {
	TradeID    string            `json:"trade_id"`
	Symbol     string            `json:"symbol"`
	Side       string            `json:"side"`
	Price      decimal.Decimal   `json:"price"`
	Amount     decimal.Decimal   `json:"amount"`
	TotalValue decimal.Decimal   `json:"total_value"`
	Commission decimal.Decimal   `json:"commission"`
	ExecutedAt time.Time         `json:"executed_at"`
	Balance    decimal.Decimal   `json:"balance"`
	Holdings   []HoldingSnapshot `json:"holdings"`
	Message    string            `json:"message"`
}
