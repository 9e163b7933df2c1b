package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"exchange_go/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

func dialHub(t *testing.T, server *httptest.Server, accountID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?account_id=" + accountID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_DeliversToSubscriber(t *testing.T) {
	hub := NewHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	server := httptest.NewServer(mux)
	defer server.Close()
	defer hub.Close()

	conn := dialHub(t, server, "acct-1")

	// Let the hub register the connection before publishing.
	time.Sleep(50 * time.Millisecond)

	sent := &domain.SettlementNotification{
		TradeID:    "trade-1",
		Symbol:     "BTC",
		Side:       domain.SideBuy,
		Price:      decimal.RequireFromString("500"),
		Amount:     decimal.RequireFromString("1"),
		TotalValue: decimal.RequireFromString("500"),
		Commission: decimal.RequireFromString("7.5"),
		Balance:    decimal.RequireFromString("492.5"),
		Message:    "Your buy order for 1 BTC was filled at 500 USD",
	}
	hub.NotifyTradeSettled("acct-1", sent)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var got domain.SettlementNotification
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.TradeID != "trade-1" || got.Side != domain.SideBuy {
		t.Errorf("unexpected payload: %+v", got)
	}
	if !got.Commission.Equal(decimal.RequireFromString("7.5")) {
		t.Errorf("commission wrong: %s", got.Commission)
	}
}

func TestHub_IgnoresUnknownAccount(t *testing.T) {
	hub := NewHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	server := httptest.NewServer(mux)
	defer server.Close()
	defer hub.Close()

	conn := dialHub(t, server, "acct-1")
	time.Sleep(50 * time.Millisecond)

	// A notification for someone else must not reach this client.
	hub.NotifyTradeSettled("acct-2", &domain.SettlementNotification{TradeID: "other"})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected no message for a different account")
	}
}

func TestHub_ConcurrentNotifyWithSlowConsumer(t *testing.T) {
	hub := NewHub()

	// A consumer whose buffer is already full, so every notify takes the
	// slow-consumer drop path while the others race to send.
	slow := &client{
		accountID: "acct-slow",
		send:      make(chan []byte, 1),
		done:      make(chan struct{}),
	}
	hub.register(slow)
	slow.send <- []byte("backlog")

	n := &domain.SettlementNotification{TradeID: "trade-race", Symbol: "BTC"}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.NotifyTradeSettled("acct-slow", n)
		}()
	}
	wg.Wait()

	select {
	case <-slow.done:
	default:
		t.Error("expected the slow consumer to be signalled for teardown")
	}

	hub.mu.RLock()
	_, still := hub.clients["acct-slow"]
	hub.mu.RUnlock()
	if still {
		t.Error("expected the slow consumer to be unregistered")
	}

	// A repeat teardown (writeLoop exit path) must be a no-op.
	hub.unregister(slow)
}

func TestHub_RequiresAccountID(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}
