package domain

// TradeNotifier delivers settlement notifications to connected clients.
// Delivery is fire-and-forget: a participant with no live connection
// simply misses the push.
type TradeNotifier interface {
	NotifyTradeSettled(accountID string, n *SettlementNotification)
}

// MatchScheduler queues an asynchronous matching attempt for an order.
// Delivery is at-least-once; AttemptMatch is idempotent against redelivery.
type MatchScheduler interface {
	ScheduleMatch(orderID string)
}
