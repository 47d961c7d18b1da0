package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quizfunnel/quizfunnel/server/internal/experiment"
)

const (
	// writeTimeout bounds each frame written to a dashboard.
	writeTimeout = 10 * time.Second

	// pongWait is the read deadline, extended by every pong.
	pongWait = 60 * time.Second

	// pingPeriod must stay below pongWait so a live peer never times out.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is how many report frames may queue per dashboard.
	sendBufSize = 16

	// buildTimeout bounds one report build.
	buildTimeout = 5 * time.Second
)

// EventReports is the event name of every broadcast message.
const EventReports = "reports"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Source produces the reports to broadcast.
type Source interface {
	Reports(ctx context.Context) ([]experiment.Report, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]experiment.Report, error)

// Reports calls f.
func (f SourceFunc) Reports(ctx context.Context) ([]experiment.Report, error) { return f(ctx) }

// Message is the frame pushed to dashboards: every report, built at GeneratedAt.
type Message struct {
	Event       string              `json:"event"`
	GeneratedAt time.Time           `json:"generated_at"`
	Data        []experiment.Report `json:"data"`
}

// Hub manages WebSocket client connections and broadcasts the current
// experiment reports to all connected clients every interval.
type Hub struct {
	src      Source
	interval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client is one connected dashboard.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub that reads from src and broadcasts every interval.
func New(src Source, interval time.Duration) *Hub {
	return &Hub{
		src:      src,
		interval: interval,
		clients:  make(map[*client]struct{}),
	}
}

// Run starts the broadcast ticker loop. It sends the current reports to all
// connected clients every interval, skipping ticks with nobody listening.
// On cancellation every connection is closed and Run returns.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			if h.Count() == 0 {
				continue
			}
			h.broadcast(ctx)
		}
	}
}

// ServeHTTP upgrades a dashboard connection, sends the current reports at
// once and then relays ticker broadcasts until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade replied with 400 already.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}

	// Queue the current reports before registering so the first frame is
	// always the connect message.
	if data, err := h.buildMessage(r.Context()); err == nil {
		c.send <- data
	}
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

// Count reports how many dashboards are connected.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) broadcast(ctx context.Context) {
	data, err := h.buildMessage(ctx)
	if err != nil {
		slog.Warn("ws: build reports failed", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client's outgoing buffer is full; disconnect it.
			delete(h.clients, c)
			close(c.send)
			slog.Debug("ws: dropped slow client")
		}
	}
}

func (h *Hub) buildMessage(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()
	reports, err := h.src.Reports(ctx)
	if err != nil {
		return nil, err
	}
	if reports == nil {
		reports = []experiment.Report{}
	}
	return json.Marshal(Message{
		Event:       EventReports,
		GeneratedAt: time.Now().UTC(),
		Data:        reports,
	})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump forwards queued report frames and keeps the connection alive
// with pings. A closed send channel ends it with a close frame.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Unregistered or shutting down.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to service pongs and to notice
// when the dashboard disconnects.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
