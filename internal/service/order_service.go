package service

import (
	"fmt"
	"log/slog"

	"exchange_go/internal/domain"
	"exchange_go/internal/infra"
	"exchange_go/internal/infra/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Orderbook is the read-only projection of one symbol's open orders,
// each side sorted by matching priority.
type Orderbook struct {
	BuyOrders  []domain.Order `json:"buy_orders"`
	SellOrders []domain.Order `json:"sell_orders"`
}

// OrderService handles order placement, cancellation and the orderbook
// view. Inputs are pre-validated by the API layer (positive decimals with
// at most 8 fractional digits); the service re-checks only what it must
// to stay safe.
type OrderService struct {
	store     *storage.Storage
	symbols   []string
	scheduler domain.MatchScheduler
}

// NewOrderService creates a new OrderService instance. scheduler may be
// nil when asynchronous matching is not wanted (tests).
func NewOrderService(store *storage.Storage, symbols []string, scheduler domain.MatchScheduler) *OrderService {
	return &OrderService{
		store:     store,
		symbols:   symbols,
		scheduler: scheduler,
	}
}

// PlaceOrder reserves the committed resource and persists a new open
// order. Buy orders lock price×amount of fiat; sell orders lock amount of
// the asset. On success a matching attempt is scheduled asynchronously;
// placement never blocks on matching.
func (s *OrderService) PlaceOrder(accountID, symbol, side string, price, amount decimal.Decimal) (*domain.Order, error) {
	if !s.supportsSymbol(symbol) {
		return nil, domain.ErrUnsupportedSymbol
	}
	if side != domain.SideBuy && side != domain.SideSell {
		return nil, fmt.Errorf("invalid side %q", side)
	}
	if !price.IsPositive() || !amount.IsPositive() {
		return nil, fmt.Errorf("price and amount must be positive")
	}

	order := &domain.Order{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Amount:    amount,
		Status:    domain.OrderStatusOpen,
	}

	err := s.store.Transaction(func(tx *gorm.DB) error {
		if side == domain.SideBuy {
			return s.placeBuy(tx, order)
		}
		return s.placeSell(tx, order)
	})
	if err != nil {
		infra.GlobalMetrics.RecordOrderRejected()
		return nil, err
	}

	infra.GlobalMetrics.RecordOrderPlaced()
	slog.Info("order placed",
		slog.String("order_id", order.ID),
		slog.String("account_id", accountID),
		slog.String("symbol", symbol),
		slog.String("side", side),
		slog.String("price", price.String()),
		slog.String("amount", amount.String()))

	if s.scheduler != nil {
		s.scheduler.ScheduleMatch(order.ID)
	}
	return order, nil
}

// placeBuy deducts the order's cost from the account balance and records
// it as the order's fiat reservation. The account row stays locked for
// the whole check-and-mutate sequence.
func (s *OrderService) placeBuy(tx *gorm.DB, order *domain.Order) error {
	account, err := s.store.LockAccount(tx, order.AccountID)
	if err != nil {
		return fmt.Errorf("lock account: %w", err)
	}

	cost := order.TotalValue()
	if !account.HasEnoughBalance(cost) {
		return domain.ErrInsufficientFunds
	}

	account.Balance = account.Balance.Sub(cost)
	if err := tx.Save(account).Error; err != nil {
		return err
	}

	order.LockedFiat = decimal.NewNullDecimal(cost)
	return tx.Create(order).Error
}

// placeSell moves the order's amount from the holding's available to
// locked, creating the holding lazily when absent.
func (s *OrderService) placeSell(tx *gorm.DB, order *domain.Order) error {
	holding, err := s.store.LockOrCreateHolding(tx, order.AccountID, order.Symbol)
	if err != nil {
		return fmt.Errorf("lock holding: %w", err)
	}

	if !holding.HasEnoughAvailable(order.Amount) {
		return domain.ErrInsufficientAsset
	}

	holding.LockAmount(order.Amount)
	if err := tx.Save(holding).Error; err != nil {
		return err
	}

	order.LockedAsset = decimal.NewNullDecimal(order.Amount)
	return tx.Create(order).Error
}

// CancelOrder releases a still-open order's reservation and marks it
// cancelled. The exact inverse of placement's reservation step.
func (s *OrderService) CancelOrder(orderID, accountID string) error {
	err := s.store.Transaction(func(tx *gorm.DB) error {
		order, err := s.store.LockOrder(tx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if order == nil || order.AccountID != accountID {
			return domain.ErrOrderNotFound
		}
		if !order.IsOpen() {
			return domain.ErrOrderNotCancellable
		}

		if order.IsBuy() {
			account, err := s.store.LockAccount(tx, order.AccountID)
			if err != nil {
				return fmt.Errorf("lock account: %w", err)
			}
			account.Balance = account.Balance.Add(order.LockedFiat.Decimal)
			if err := tx.Save(account).Error; err != nil {
				return err
			}
		} else {
			holding, err := s.store.LockHolding(tx, order.AccountID, order.Symbol)
			if err != nil {
				return fmt.Errorf("lock holding: %w", err)
			}
			if holding != nil {
				holding.UnlockAmount(order.LockedAsset.Decimal)
				if err := tx.Save(holding).Error; err != nil {
					return err
				}
			}
		}

		order.Status = domain.OrderStatusCancelled
		return tx.Save(order).Error
	})
	if err != nil {
		return err
	}

	infra.GlobalMetrics.RecordOrderCancelled()
	slog.Info("order cancelled",
		slog.String("order_id", orderID),
		slog.String("account_id", accountID))
	return nil
}

// GetOrderbook returns the open orders of a symbol, grouped by side and
// sorted by matching priority.
func (s *OrderService) GetOrderbook(symbol string) (*Orderbook, error) {
	buys, err := s.store.OpenOrders(symbol, domain.SideBuy)
	if err != nil {
		return nil, err
	}
	sells, err := s.store.OpenOrders(symbol, domain.SideSell)
	if err != nil {
		return nil, err
	}
	return &Orderbook{BuyOrders: buys, SellOrders: sells}, nil
}

func (s *OrderService) supportsSymbol(symbol string) bool {
	for _, sym := range s.symbols {
		if sym == symbol {
			return true
		}
	}
	return false
}
