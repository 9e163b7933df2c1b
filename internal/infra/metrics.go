package infra

import (
	"sync/atomic"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	ordersPlaced    atomic.Uint64
	ordersRejected  atomic.Uint64
	ordersCancelled atomic.Uint64
	tradesSettled   atomic.Uint64
	matchAttempts   atomic.Uint64
	matchRetries    atomic.Uint64
	matchNoMatch    atomic.Uint64
	notifSent       atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordOrderPlaced records a successfully placed order.
func (m *Metrics) RecordOrderPlaced() {
	m.ordersPlaced.Add(1)
}

// RecordOrderRejected records a placement rejected for insufficient funds/assets.
func (m *Metrics) RecordOrderRejected() {
	m.ordersRejected.Add(1)
}

// RecordOrderCancelled records a cancelled order.
func (m *Metrics) RecordOrderCancelled() {
	m.ordersCancelled.Add(1)
}

// RecordTradeSettled records an executed trade.
func (m *Metrics) RecordTradeSettled() {
	m.tradesSettled.Add(1)
}

// RecordMatchAttempt records one matching attempt.
func (m *Metrics) RecordMatchAttempt() {
	m.matchAttempts.Add(1)
}

// RecordMatchRetry records a retried matching attempt.
func (m *Metrics) RecordMatchRetry() {
	m.matchRetries.Add(1)
}

// RecordNoMatch records an attempt that found no counter-order.
func (m *Metrics) RecordNoMatch() {
	m.matchNoMatch.Add(1)
}

// RecordNotificationSent records a delivered settlement notification.
func (m *Metrics) RecordNotificationSent() {
	m.notifSent.Add(1)
}

// Snapshot returns current metric values for logging or inspection.
func (m *Metrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"orders_placed":      m.ordersPlaced.Load(),
		"orders_rejected":    m.ordersRejected.Load(),
		"orders_cancelled":   m.ordersCancelled.Load(),
		"trades_settled":     m.tradesSettled.Load(),
		"match_attempts":     m.matchAttempts.Load(),
		"match_retries":      m.matchRetries.Load(),
		"match_no_match":     m.matchNoMatch.Load(),
		"notifications_sent": m.notifSent.Load(),
	}
}
