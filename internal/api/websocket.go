package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	writeWait = 2 * time.Second
)

// wsClient tracks a WebSocket connection with its source IP
type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// wsCommand is a client request sent over the socket.
type wsCommand struct {
	Cmd    string `json:"cmd"`
	Health int    `json:"health,omitempty"`
}

// WebSocketHub manages all WebSocket connections with DoS protection
type WebSocketHub struct {
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex

	rng      RangeController
	upgrader websocket.Upgrader
	log      *zap.Logger

	conns  *ConnLimiter
	spawns *IPRateLimiter
}

// NewWebSocketHub creates a new hub with connection limiting. Commands
// received from clients are applied to rng; nil rng makes the hub
// broadcast-only.
func NewWebSocketHub(rng RangeController, origins []string, log *zap.Logger) *WebSocketHub {
	if log == nil {
		log = zap.NewNop()
	}
	if origins == nil {
		origins = DefaultOrigins
	}
	h := &WebSocketHub{
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		rng:        rng,
		log:        log.Named("ws"),
		conns:      NewConnLimiter(MaxWSConnectionsPerIP),
		spawns:     NewIPRateLimiter(DefaultSpawnRateLimitConfig),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || IsAllowedOrigin(origin, origins) {
				return true
			}
			h.log.Warn("connection rejected", zap.String("origin", origin))
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Run starts the hub. It returns after Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for conn, client := range h.clients {
				h.conns.Release(client.ip)
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			h.log.Info("client connected", zap.String("ip", client.ip), zap.Int("total", count))
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.mu.Lock()
			if client, ok := h.clients[conn]; ok {
				// Release the connection slot for this IP
				h.conns.Release(client.ip)
				delete(h.clients, conn)
				conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()

			h.log.Info("client disconnected", zap.Int("remaining", count))
			UpdateWSConnections(count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn, client := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					h.conns.Release(client.ip)
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
			IncrementWSMessages()
		}
	}
}

// Stop closes every connection and ends Run and the broadcast loop.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
	h.spawns.Stop()
}

// Broadcast sends a message to all connected clients
func (h *WebSocketHub) Broadcast(event string, data interface{}) {
	msg := map[string]interface{}{
		"event": event,
		"data":  data,
	}

	jsonBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case h.broadcast <- jsonBytes:
	default:
		// Channel full, skip (backpressure)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop pushes range snapshots at fps until Stop.
func (h *WebSocketHub) StartBroadcastLoop(fps int) {
	if fps <= 0 {
		fps = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-ticker.C:
			}
			if h.rng == nil || h.ClientCount() == 0 {
				continue
			}
			h.Broadcast("range:state", h.rng.GetSnapshot())
		}
	}()
}

// HandleWebSocket handles incoming WebSocket connections with DoS protection
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Get client IP for rate limiting
	ip := GetClientIP(r)

	// Check total connection limit
	if total := h.ClientCount(); total >= MaxWSConnectionsTotal {
		h.log.Warn("connection rejected: total limit reached", zap.Int("total", total))
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	// Check per-IP connection limit
	if !h.conns.Acquire(ip) {
		h.log.Warn("connection rejected: per-IP limit reached", zap.String("ip", ip))
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.Error(err))
		h.conns.Release(ip) // Release the slot we reserved
		return
	}

	client := &wsClient{conn: conn, ip: ip}
	select {
	case h.register <- client:
	case <-h.done:
		h.conns.Release(ip)
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd wsCommand
			if err := json.Unmarshal(message, &cmd); err != nil {
				continue
			}
			h.apply(cmd, ip)
		}
	}()
}

func (h *WebSocketHub) apply(cmd wsCommand, ip string) {
	if h.rng == nil {
		return
	}
	switch cmd.Cmd {
	case "pull":
		h.rng.PullTrigger()
	case "release":
		h.rng.ReleaseTrigger()
	case "reset":
		h.rng.ResetWeapon()
	case "spawn":
		if cmd.Health < 1 || cmd.Health > MaxSpawnHealth {
			cmd.Health = 1
		}
		if !h.spawns.Allow(ip) {
			h.log.Debug("spawn command throttled", zap.String("ip", ip))
			return
		}
		if _, err := h.rng.SpawnTarget(cmd.Health); err != nil {
			h.log.Debug("spawn command failed", zap.String("ip", ip), zap.Error(err))
		}
	default:
		h.log.Debug("unknown command", zap.String("ip", ip), zap.String("cmd", cmd.Cmd))
	}
}
