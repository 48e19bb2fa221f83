// Package events fans order activity out to admin dashboards over websockets.
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/patisserie-labs/storefront/internal/app/system"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

// Event types.
const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
	TypeCheckoutFailed     = "checkout.failed"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 16
)

// Event is a message pushed to subscribers.
type Event struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// Publisher accepts events. Services depend on this rather than the hub.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

var (
	_ Publisher      = (*Hub)(nil)
	_ system.Service = (*Hub)(nil)
)

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub broadcasts events to websocket subscribers. A subscriber whose send
// buffer is full is disconnected.
type Hub struct {
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	running bool
	wg      sync.WaitGroup
}

// NewHub creates a hub. checkOrigin may be nil to accept same-origin requests only.
func NewHub(checkOrigin func(r *http.Request) bool, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		subs: make(map[*subscriber]struct{}),
	}
}

func (h *Hub) Name() string { return "events-hub" }

func (h *Hub) Start(context.Context) error {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	h.log.Info("events hub started")
	return nil
}

// Stop disconnects every subscriber and waits for their writers to exit.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.running = false
	for sub := range h.subs {
		delete(h.subs, sub)
		sub.close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	h.log.Info("events hub stopped")
	return nil
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish sends evt to every subscriber without blocking.
func (h *Hub) Publish(ctx context.Context, evt Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.WithContext(ctx).WithError(err).Warn("encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- data:
		default:
			delete(h.subs, sub)
			sub.close()
			h.log.WithContext(ctx).Warn("dropping slow event subscriber")
		}
	}
}

// ServeWS upgrades the request and streams events until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	running := h.running
	h.mu.Unlock()
	if !running {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Debug("websocket upgrade failed")
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, sendBufferSize)}
	if !h.register(sub) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	go h.writeLoop(sub)
	go h.readLoop(sub)
}

// register adds sub unless the hub stopped while the upgrade was in flight.
// The wait group is bumped under the same lock Stop takes before waiting.
func (h *Hub) register(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return false
	}
	h.subs[sub] = struct{}{}
	h.wg.Add(2)
	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		sub.close()
	}
	h.mu.Unlock()
}

// readLoop discards client messages and keeps the read deadline fresh on pong.
func (h *Hub) readLoop(sub *subscriber) {
	defer h.wg.Done()
	defer h.remove(sub)

	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	defer h.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(sub)
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(sub)
				return
			}
		}
	}
}
