package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"exchange_go/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second
	sendBuffer   = 16
)

// Hub fans settlement notifications out to connected clients, keyed by
// account id. Delivery is fire-and-forget: an account with no live
// connection misses the push, and a slow client is disconnected rather
// than allowed to block settlement.
//
// Authentication is the API gateway's job; by the time a connection
// reaches the hub its account id is trusted.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
}

// client owns one connection. send is never closed; teardown is signalled
// through done, which only Hub.unregister closes (exactly once, under the
// hub lock), so concurrent notifies can never race a close.
type client struct {
	accountID string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleWS upgrades an HTTP request to a websocket subscription for the
// account id in the query string.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		http.Error(w, "account_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		accountID: accountID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}
	h.register(c)

	go c.writeLoop(func() { h.unregister(c) })
	go c.readLoop()

	slog.Info("notification client connected", slog.String("account_id", accountID))
}

// NotifyTradeSettled sends the settlement notification to every live
// connection of the account. Implements domain.TradeNotifier.
func (h *Hub) NotifyTradeSettled(accountID string, n *domain.SettlementNotification) {
	data, err := json.Marshal(n)
	if err != nil {
		slog.Error("failed to encode notification", slog.Any("error", err))
		return
	}

	h.mu.RLock()
	conns := make([]*client, 0, len(h.clients[accountID]))
	for c := range h.clients[accountID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.send <- data:
		default:
			// Slow consumer: drop the connection, not the settlement.
			h.unregister(c)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.clients {
		for c := range conns {
			close(c.done)
		}
	}
	h.clients = make(map[string]map[*client]struct{})
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.accountID] == nil {
		h.clients[c.accountID] = make(map[*client]struct{})
	}
	h.clients[c.accountID][c] = struct{}{}
}

// unregister removes the client and signals teardown. Map membership
// guarantees done is closed at most once even when the slow-consumer path
// and an exiting writeLoop both get here.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[c.accountID]; ok {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			close(c.done)
			if len(conns) == 0 {
				delete(h.clients, c.accountID)
			}
		}
	}
}

// writeLoop serializes all writes to the connection and keeps it alive
// with periodic pings.
func (c *client) writeLoop(onExit func()) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		onExit()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound messages and refreshes the read deadline on
// pongs. The hub is push-only.
func (c *client) readLoop() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
