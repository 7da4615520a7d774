package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// Hub fans job status updates out to the sockets of one client id. A client
// may hold several sockets, one per open session.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]struct{}
	log   *log.Logger
}

func NewHub(l *log.Logger) *Hub {
	if l == nil {
		l = log.Default()
	}
	return &Hub{conns: make(map[string]map[*websocket.Conn]struct{}), log: l}
}

// Handler serves /ws?clientID=<id>. Inbound frames are read and discarded so
// close frames are processed.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := strings.TrimSpace(r.URL.Query().Get("clientID"))
		if clientID == "" {
			http.Error(w, "clientID is required", http.StatusBadRequest)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			h.log.Warn("websocket accept", "err", err)
			return
		}

		h.add(clientID, conn)
		defer h.remove(clientID, conn)
		h.log.Debug("websocket connected", "client", clientID)

		ctx := r.Context()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				h.log.Debug("websocket closed", "client", clientID, "err", err)
				return
			}
		}
	}
}

// Broadcast writes event as JSON to every socket of clientID. Sockets that
// fail the write are dropped.
func (h *Hub) Broadcast(clientID string, event any) {
	for _, conn := range h.snapshot(clientID) {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := wsjson.Write(ctx, conn, event)
		cancel()
		if err != nil {
			h.log.Warn("websocket write", "client", clientID, "err", err)
			go func(conn *websocket.Conn) {
				conn.Close(websocket.StatusGoingAway, "write error")
				h.remove(clientID, conn)
			}(conn)
		}
	}
}

// Connections reports how many sockets clientID holds.
func (h *Hub) Connections(clientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[clientID])
}

func (h *Hub) snapshot(clientID string) []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*websocket.Conn, 0, len(h.conns[clientID]))
	for conn := range h.conns[clientID] {
		out = append(out, conn)
	}
	return out
}

func (h *Hub) add(clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[clientID]
	if !ok {
		set = make(map[*websocket.Conn]struct{})
		h.conns[clientID] = set
	}
	set[conn] = struct{}{}
}

func (h *Hub) remove(clientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[clientID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.conns, clientID)
	}
}
