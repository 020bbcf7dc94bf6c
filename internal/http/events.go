package http

import (
	"net/http"
	"sync"

	"Key2PayBridge/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventHub streams order status transitions to waiting checkout pages over
// websocket. The reconcile service publishes into it; subscribers get the
// current status on connect and each transition until the order is terminal.
type EventHub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu   sync.Mutex
	subs map[string]map[*websocket.Conn]struct{}
}

type statusEvent struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

func NewEventHub(log *zap.Logger) *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:  log,
		subs: map[string]map[*websocket.Conn]struct{}{},
	}
}

// Publish fans a transition out to all subscribers of the order. Terminal
// transitions close the stream.
func (h *EventHub) Publish(orderID string, status models.OrderStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.subs[orderID]
	if len(conns) == 0 {
		return
	}
	ev := statusEvent{OrderID: orderID, Status: string(status)}
	for conn := range conns {
		if err := conn.WriteJSON(ev); err != nil {
			h.dropLocked(orderID, conn)
			continue
		}
		if status.Terminal() {
			_ = conn.Close()
			h.dropLocked(orderID, conn)
		}
	}
}

// Subscribe upgrades the request, sends the current status, and keeps the
// connection registered until the peer goes away or the order finalizes.
func (h *EventHub) Subscribe(w http.ResponseWriter, r *http.Request, order *models.Order) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	if err := conn.WriteJSON(statusEvent{OrderID: order.OrderID, Status: string(order.Status)}); err != nil {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	if order.Status.Terminal() {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	if h.subs[order.OrderID] == nil {
		h.subs[order.OrderID] = map[*websocket.Conn]struct{}{}
	}
	h.subs[order.OrderID][conn] = struct{}{}
	h.mu.Unlock()

	go h.readLoop(order.OrderID, conn)
}

// readLoop drains the connection so pings and closes are noticed.
func (h *EventHub) readLoop(orderID string, conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.mu.Lock()
	h.dropLocked(orderID, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *EventHub) dropLocked(orderID string, conn *websocket.Conn) {
	if conns, ok := h.subs[orderID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subs, orderID)
		}
	}
}
