// Package pub re-publishes assembled snapshots to WebSocket subscribers.
// The hub receives the same snapshot value the file pipeline receives;
// it is a downstream sink, never a second source of truth.
package pub

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teramod/radar/internal/metrics"
	"github.com/teramod/radar/internal/snapshot"
)

const maxSubscribers = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Subscribers are local tooling (viewers, bots); any origin may read.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans one snapshot stream out to all connected subscribers.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	broadcast chan []byte
	log       *zap.Logger

	published    atomic.Uint64
	droppedSends atomic.Uint64
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan []byte, 16),
		log:       log,
	}
}

// Run consumes the broadcast queue. Runs in its own goroutine.
func (h *Hub) Run() {
	for msg := range h.broadcast {
		h.mu.RLock()
		conns := make([]*websocket.Conn, 0, len(h.clients))
		for c := range h.clients {
			conns = append(conns, c)
		}
		h.mu.RUnlock()

		for _, c := range conns {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
			}
		}
	}
}

// Publish hands a snapshot to the hub. Never blocks: a full queue sheds
// the frame (subscribers are best-effort, the file is the contract).
func (h *Hub) Publish(snap *snapshot.Snapshot) {
	if h.ClientCount() == 0 {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
		h.published.Add(1)
	default:
		h.droppedSends.Add(1)
	}
}

// HandleWS upgrades an HTTP request to a snapshot subscription.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	if h.ClientCount() >= maxSubscribers {
		http.Error(w, "too many subscribers", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.UpdateSubscribers(count)
	h.log.Info("subscriber connected",
		zap.String("remote", conn.RemoteAddr().String()),
		zap.Int("total", count))

	// Drain (and discard) client frames so pings and closes are seen.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		conn.Close()
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		metrics.UpdateSubscribers(count)
		h.log.Info("subscriber disconnected", zap.Int("remaining", count))
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishedCount returns frames handed to subscribers.
func (h *Hub) PublishedCount() uint64 { return h.published.Load() }

// Serve starts an HTTP server exposing the hub at /ws.
func (h *Hub) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWS)
	return http.ListenAndServe(addr, mux)
}
