package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"crowdfund-ledger/internal/observability"
)

// ErrHubClosed is returned by Publish after Close.
var ErrHubClosed = errors.New("event hub closed")

// HubConfig configures websocket fan-out behavior.
type HubConfig struct {
	// WriteTimeout is timeout for writing one message.
	WriteTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long a subscriber may stay silent (pongs included).
	ReadTimeout time.Duration
	// SendBuffer is the per-subscriber queue length. A subscriber whose queue
	// is full is disconnected.
	SendBuffer int
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		SendBuffer:   256,
	}
}

// Hub is a Sink that streams events to websocket subscribers.
// Subscribers may narrow the stream with one or more ?topic= query parameters.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*subscriber]struct{}

	closed atomic.Bool
	wg     sync.WaitGroup
}

type subscriber struct {
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]bool // empty means every topic
	once   sync.Once
}

var _ Sink = (*Hub)(nil)

// NewHub creates a hub. A nil config selects DefaultHubConfig.
func NewHub(config *HubConfig) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	return &Hub{
		config: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the request and registers a subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		return
	}

	sub := &subscriber{
		conn:   conn,
		send:   make(chan []byte, h.config.SendBuffer),
		topics: make(map[string]bool),
	}
	for _, topic := range r.URL.Query()["topic"] {
		sub.topics[topic] = true
	}

	if !h.register(sub) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ErrHubClosed.Error()),
			time.Now().Add(h.config.WriteTimeout))
		conn.Close()
		return
	}

	go h.writeLoop(sub)
	go h.readLoop(sub)
}

// register adds sub and reserves its two loops in the wait group. It reports
// false once Close has started.
func (h *Hub) register(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed.Load() {
		return false
	}
	h.clients[sub] = struct{}{}
	h.wg.Add(2)
	observability.UpdateStreamSubscribers(len(h.clients))
	return true
}

// Publish queues e for every matching subscriber without blocking.
func (h *Hub) Publish(_ context.Context, e Event) error {
	if h.closed.Load() {
		return ErrHubClosed
	}

	msg, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var slow []*subscriber
	h.mu.RLock()
	for sub := range h.clients {
		if len(sub.topics) > 0 && !sub.topics[e.Topic] {
			continue
		}
		select {
		case sub.send <- msg:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.drop(sub)
	}
	return nil
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber and waits for their loops to exit.
func (h *Hub) Close() error {
	// Registration checks closed under mu, so no subscriber can be added
	// after this snapshot.
	h.mu.Lock()
	if h.closed.Swap(true) {
		h.mu.Unlock()
		return nil // Already closed
	}
	subs := make([]*subscriber, 0, len(h.clients))
	for sub := range h.clients {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.drop(sub)
	}
	h.wg.Wait()
	return nil
}

// drop unregisters sub and closes its connection exactly once.
func (h *Hub) drop(sub *subscriber) {
	sub.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, sub)
		n := len(h.clients)
		h.mu.Unlock()
		observability.UpdateStreamSubscribers(n)

		close(sub.send)
	})
}

// writeLoop drains the subscriber queue and keeps the connection alive.
func (h *Hub) writeLoop(sub *subscriber) {
	defer h.wg.Done()
	defer sub.conn.Close()

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.drop(sub)
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(sub)
				return
			}
		}
	}
}

// readLoop discards inbound frames and detects disconnects.
func (h *Hub) readLoop(sub *subscriber) {
	defer h.wg.Done()

	sub.conn.SetReadLimit(4096)
	sub.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			h.drop(sub)
			return
		}
	}
}
