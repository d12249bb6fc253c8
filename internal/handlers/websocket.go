package handlers

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
)

// Manager owns the websocket subscriber set and fans ledger events out to
// every connected client.
type Manager struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*websocket.Conn]struct{}
}

func NewWebSocketManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subscribers: make(map[*websocket.Conn]struct{}),
	}
}

func (m *Manager) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return m.upgrader.Upgrade(w, r, nil)
}

func (m *Manager) AddSubscriber(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[conn] = struct{}{}
}

func (m *Manager) RemoveSubscriber(conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, conn)
	conn.Close()
}

// Broadcast pushes the event to all subscribers as JSON. A failing
// connection is dropped rather than retried.
func (m *Manager) Broadcast(event entities.LedgerEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for conn := range m.subscribers {
		if err := conn.WriteJSON(event); err != nil {
			m.logger.Error("Failed to push event to subscriber, dropping connection", "error", err)
			delete(m.subscribers, conn)
			conn.Close()
		}
	}
}

// WebSocketHandler exposes the live ledger event stream.
type WebSocketHandler struct {
	logger           *slog.Logger
	websocketManager *Manager
}

func NewWebSocketHandler(logger *slog.Logger, websocketManager *Manager) *WebSocketHandler {
	return &WebSocketHandler{
		logger:           logger,
		websocketManager: websocketManager,
	}
}

func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws/events", h.HandleConnection)
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.websocketManager.Upgrade(w, r)
	if err != nil {
		h.logger.Error("Error upgrading connection", "error", err)
		return
	}

	h.logger.Info("New WebSocket connection", "remote", r.RemoteAddr)
	h.websocketManager.AddSubscriber(conn)

	// Keep connection open and handle disconnection.
	for {
		if _, _, readErr := conn.ReadMessage(); readErr != nil {
			h.logger.Info("WebSocket connection closed", "remote", r.RemoteAddr, "error", readErr)
			h.websocketManager.RemoveSubscriber(conn)
			break
		}
	}
}
