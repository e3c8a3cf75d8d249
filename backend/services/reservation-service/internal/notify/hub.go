package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"swapstation/backend/services/reservation-service/internal/metrics"
	"swapstation/backend/services/reservation-service/internal/models"
)

const (
	sendBuffer    = 16
	writeTimeout  = 10 * time.Second
	pongWait      = 60 * time.Second
	pingInterval  = 30 * time.Second
	readSizeLimit = 4096
)

// Hub pushes notifications to the websocket clients of each session.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

type client struct {
	session string
	conn    *websocket.Conn
	send    chan []byte
}

// NewHub builds hub. An empty allowedOrigins list accepts any origin.
func NewHub(allowedOrigins []string, m *metrics.Metrics, logger *zap.Logger) *Hub {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Hub{
		sessions: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		metrics: m,
		logger:  logger,
	}
}

// Serve upgrades the request and streams the session's notifications until the client
// goes away or ctx is done.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, session string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{session: session, conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(c)
	go h.writePump(ctx, c)
	h.readPump(c)
}

// ForSession binds a Notifier to one session.
func (h *Hub) ForSession(session string) Notifier {
	return Func(func(_ context.Context, n models.Notification) {
		h.Publish(session, n)
	})
}

// Publish queues n for every client of session. Clients with a full buffer miss it.
func (h *Hub) Publish(session string, n models.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Warn("encode notification failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.sessions[session] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping notification, client buffer full", zap.String("session", shortKey(session)))
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.countLocked()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for session, clients := range h.sessions {
		for c := range clients {
			close(c.send)
		}
		delete(h.sessions, session)
	}
	h.metrics.SetHubClients(0)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.sessions[c.session]
	if !ok {
		clients = make(map[*client]struct{})
		h.sessions[c.session] = clients
	}
	clients[c] = struct{}{}
	h.metrics.SetHubClients(h.countLocked())
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.sessions[c.session]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.sessions, c.session)
	}
	h.metrics.SetHubClients(h.countLocked())
}

func (h *Hub) countLocked() int {
	total := 0
	for _, clients := range h.sessions {
		total += len(clients)
	}
	return total
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(readSizeLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

func shortKey(session string) string {
	if len(session) > 8 {
		return session[:8]
	}
	return session
}
