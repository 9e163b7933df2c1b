package service

import (
	"fmt"
	"log/slog"
	"strings"

	"exchange_go/internal/domain"
	"exchange_go/internal/infra"
	"exchange_go/internal/infra/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MatchingService searches the opposite side of the book for a freshly
// placed order and, on a full match, settles the trade atomically.
type MatchingService struct {
	store    *storage.Storage
	notifier domain.TradeNotifier
}

// NewMatchingService creates a new MatchingService instance. notifier may
// be nil when settlement notifications are not wanted (tests).
func NewMatchingService(store *storage.Storage, notifier domain.TradeNotifier) *MatchingService {
	return &MatchingService{
		store:    store,
		notifier: notifier,
	}
}

// pendingNotification is a settlement notification captured inside the
// settlement transaction and delivered only after it commits.
type pendingNotification struct {
	accountID string
	payload   *domain.SettlementNotification
}

// AttemptMatch runs one matching attempt for the order. Idempotent: safe
// to invoke multiple times or re-queue after a transient failure; a no-op
// when the order is no longer open. Returns the settled trade, or nil
// when no trade occurred.
func (m *MatchingService) AttemptMatch(orderID string) (*domain.Trade, error) {
	infra.GlobalMetrics.RecordMatchAttempt()

	var trade *domain.Trade
	var notifications []pendingNotification

	err := m.store.Transaction(func(tx *gorm.DB) error {
		// Reload inside the transaction: matching must act on the latest
		// committed status, never a cached snapshot.
		order, err := m.store.LockOrder(tx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if order == nil || !order.IsOpen() {
			return nil // raced with cancellation or an earlier match
		}

		candidate, err := m.store.FindMatchCandidate(tx, order)
		if err != nil {
			return fmt.Errorf("find candidate: %w", err)
		}
		if candidate == nil {
			return nil // no compatible counter-order; order stays open
		}

		// Full match only. A price-compatible candidate of different size
		// is skipped outright: no further candidates are searched and no
		// partial fill is attempted.
		if !order.Amount.Equal(candidate.Amount) {
			return nil
		}

		buyOrder, sellOrder := order, candidate
		if order.IsSell() {
			buyOrder, sellOrder = candidate, order
		}

		trade, notifications, err = m.executeTrade(tx, buyOrder, sellOrder)
		return err
	})
	if err != nil {
		if isContention(err) {
			return nil, domain.NewContentionError("match", err)
		}
		return nil, err
	}

	if trade == nil {
		infra.GlobalMetrics.RecordNoMatch()
		slog.Debug("no match", slog.String("order_id", orderID))
		return nil, nil
	}

	infra.GlobalMetrics.RecordTradeSettled()
	slog.Info("trade settled",
		slog.String("trade_id", trade.ID),
		slog.String("symbol", trade.Symbol),
		slog.String("price", trade.Price.String()),
		slog.String("amount", trade.Amount.String()),
		slog.String("commission", trade.Commission.String()))

	if m.notifier != nil {
		for _, n := range notifications {
			m.notifier.NotifyTradeSettled(n.accountID, n.payload)
			infra.GlobalMetrics.RecordNotificationSent()
		}
	}
	return trade, nil
}

// executeTrade settles a matched pair with equal amounts. The execution
// price is always the sell order's price, giving price improvement to the
// aggressive side. Runs inside the caller's transaction; both orders are
// already locked.
func (m *MatchingService) executeTrade(tx *gorm.DB, buyOrder, sellOrder *domain.Order) (*domain.Trade, []pendingNotification, error) {
	price := sellOrder.Price
	amount := sellOrder.Amount

	totalValue := domain.MulFixed(price, amount)
	commission := domain.CalculateCommission(totalValue)
	buyerTotal := totalValue.Add(commission)

	buyer, seller, err := m.lockParticipants(tx, buyOrder.AccountID, sellOrder.AccountID)
	if err != nil {
		return nil, nil, err
	}

	buyerHolding, sellerHolding, err := m.lockHoldings(tx, buyOrder, sellOrder)
	if err != nil {
		return nil, nil, err
	}

	// Integrity check: the reservation taken at placement must cover the
	// buyer's total due. A violation aborts the transaction; never settle
	// a negative balance silently.
	if buyOrder.LockedFiat.Decimal.LessThan(buyerTotal) {
		return nil, nil, domain.ErrInsufficientLockedFunds
	}

	// Refund the difference when the execution price beat the buyer's limit.
	refund := buyOrder.LockedFiat.Decimal.Sub(buyerTotal)
	if refund.IsPositive() {
		buyer.Balance = buyer.Balance.Add(refund)
	}

	sellerHolding.SubtractLocked(amount)
	buyerHolding.AddAvailable(amount)

	seller.Balance = seller.Balance.Add(totalValue)

	if err := tx.Save(buyer).Error; err != nil {
		return nil, nil, err
	}
	if seller != buyer {
		if err := tx.Save(seller).Error; err != nil {
			return nil, nil, err
		}
	}
	if err := tx.Save(buyerHolding).Error; err != nil {
		return nil, nil, err
	}
	if sellerHolding != buyerHolding {
		if err := tx.Save(sellerHolding).Error; err != nil {
			return nil, nil, err
		}
	}

	buyOrder.Status = domain.OrderStatusFilled
	sellOrder.Status = domain.OrderStatusFilled
	if err := tx.Save(buyOrder).Error; err != nil {
		return nil, nil, err
	}
	if err := tx.Save(sellOrder).Error; err != nil {
		return nil, nil, err
	}

	trade := &domain.Trade{
		ID:          uuid.NewString(),
		BuyerID:     buyer.ID,
		SellerID:    seller.ID,
		BuyOrderID:  buyOrder.ID,
		SellOrderID: sellOrder.ID,
		Symbol:      buyOrder.Symbol,
		Price:       price,
		Amount:      amount,
		TotalValue:  totalValue,
		Commission:  commission,
	}
	if err := tx.Create(trade).Error; err != nil {
		return nil, nil, err
	}

	buyerNote, err := m.buildNotification(tx, trade, buyer, domain.SideBuy)
	if err != nil {
		return nil, nil, err
	}
	sellerNote, err := m.buildNotification(tx, trade, seller, domain.SideSell)
	if err != nil {
		return nil, nil, err
	}

	notifications := []pendingNotification{
		{accountID: buyer.ID, payload: buyerNote},
		{accountID: seller.ID, payload: sellerNote},
	}
	return trade, notifications, nil
}

// lockParticipants locks both accounts in ascending id order so that two
// concurrently settling trades touching overlapping accounts cannot
// deadlock. A self-trade locks the account once and reuses it for both
// roles.
func (m *MatchingService) lockParticipants(tx *gorm.DB, buyerID, sellerID string) (buyer, seller *domain.Account, err error) {
	if buyerID == sellerID {
		account, err := m.store.LockAccount(tx, buyerID)
		if err != nil {
			return nil, nil, fmt.Errorf("lock account: %w", err)
		}
		return account, account, nil
	}

	firstID, secondID := buyerID, sellerID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}

	first, err := m.store.LockAccount(tx, firstID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock account: %w", err)
	}
	second, err := m.store.LockAccount(tx, secondID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock account: %w", err)
	}

	if firstID == buyerID {
		return first, second, nil
	}
	return second, first, nil
}

// lockHoldings locks the buyer's and seller's holdings of the traded
// symbol, in ascending account id order, creating the buyer's lazily.
func (m *MatchingService) lockHoldings(tx *gorm.DB, buyOrder, sellOrder *domain.Order) (buyerHolding, sellerHolding *domain.AssetHolding, err error) {
	symbol := buyOrder.Symbol

	if buyOrder.AccountID == sellOrder.AccountID {
		holding, err := m.store.LockHolding(tx, sellOrder.AccountID, symbol)
		if err != nil {
			return nil, nil, fmt.Errorf("lock holding: %w", err)
		}
		if holding == nil {
			return nil, nil, fmt.Errorf("seller holding missing for %s", symbol)
		}
		return holding, holding, nil
	}

	lockBuyerFirst := buyOrder.AccountID < sellOrder.AccountID
	if lockBuyerFirst {
		buyerHolding, err = m.store.LockOrCreateHolding(tx, buyOrder.AccountID, symbol)
		if err != nil {
			return nil, nil, fmt.Errorf("lock holding: %w", err)
		}
	}
	sellerHolding, err = m.store.LockHolding(tx, sellOrder.AccountID, symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("lock holding: %w", err)
	}
	if sellerHolding == nil {
		return nil, nil, fmt.Errorf("seller holding missing for %s", symbol)
	}
	if !lockBuyerFirst {
		buyerHolding, err = m.store.LockOrCreateHolding(tx, buyOrder.AccountID, symbol)
		if err != nil {
			return nil, nil, fmt.Errorf("lock holding: %w", err)
		}
	}
	return buyerHolding, sellerHolding, nil
}

// buildNotification snapshots the participant's refreshed balance and
// holdings inside the settlement transaction.
func (m *MatchingService) buildNotification(tx *gorm.DB, trade *domain.Trade, account *domain.Account, side string) (*domain.SettlementNotification, error) {
	holdings, err := m.store.AccountHoldings(tx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}

	snapshots := make([]domain.HoldingSnapshot, 0, len(holdings))
	for _, h := range holdings {
		snapshots = append(snapshots, domain.HoldingSnapshot{
			Symbol:    h.Symbol,
			Available: h.Available,
			Locked:    h.Locked,
		})
	}

	return &domain.SettlementNotification{
		TradeID:    trade.ID,
		Symbol:     trade.Symbol,
		Side:       side,
		Price:      trade.Price,
		Amount:     trade.Amount,
		TotalValue: trade.TotalValue,
		Commission: trade.Commission,
		ExecutedAt: trade.CreatedAt,
		Balance:    account.Balance,
		Holdings:   snapshots,
		Message: fmt.Sprintf("Your %s order for %s %s was filled at %s USD",
			side, trade.Amount.String(), trade.Symbol, trade.Price.String()),
	}, nil
}

// isContention reports whether a storage error was caused by lock
// contention between in-flight transactions.
func isContention(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "lock wait timeout")
}
