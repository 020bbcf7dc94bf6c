package http

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Key2PayBridge/internal/models"

	"github.com/gorilla/websocket"
)

func dialEvents(t *testing.T, serverURL, orderID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/payments/orders/" + orderID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) statusEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev statusEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ws read failed: %v", err)
	}
	return ev
}

func TestOrderEventsStream(t *testing.T) {
	st := newFakeStore(pendingOrder("o1"))
	env := setup(t, st)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dialEvents(t, srv.URL, "o1")
	defer conn.Close()

	// Current status arrives on connect.
	if ev := readEvent(t, conn); ev.Status != "pending" || ev.OrderID != "o1" {
		t.Fatalf("initial event = %+v", ev)
	}

	// A webhook decision is pushed to the waiting subscriber. The handler's
	// reconcile service publishes into the same hub the router serves.
	w := postWebhook(t, env.router, `{"trackid":"o1_1699999999","responsecode":"0","transactionid":"T1"}`)
	if w.Code != 200 {
		t.Fatalf("webhook status = %d", w.Code)
	}

	if ev := readEvent(t, conn); ev.Status != "processing" {
		t.Fatalf("transition event = %+v", ev)
	}

	// Terminal transition closes the stream.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("stream should close after a terminal transition")
	}
}

func TestOrderEventsTerminalOrderClosesImmediately(t *testing.T) {
	order := pendingOrder("o1")
	order.Status = models.OrderFailed
	env := setup(t, newFakeStore(order))
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dialEvents(t, srv.URL, "o1")
	defer conn.Close()

	if ev := readEvent(t, conn); ev.Status != "failed" {
		t.Fatalf("initial event = %+v", ev)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("stream for a terminal order should close after the snapshot")
	}
}

func TestOrderEventsUnknownOrder(t *testing.T) {
	env := setup(t, newFakeStore())
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/payments/orders/ghost/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial should fail for an unknown order")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Errorf("handshake response = %+v", resp)
	}
}
