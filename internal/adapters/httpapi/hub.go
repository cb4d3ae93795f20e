package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/ports"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SummarySource provides the state pushed to websocket clients.
type SummarySource interface {
	Snapshot() *domain.LedgerSnapshot
	PaperTrading() bool
}

type wsMessage struct {
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Summary   *summaryResponse `json:"summary,omitempty"`
	Event     *eventDTO        `json:"event,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans engine events and periodic summaries out to websocket clients.
// It implements ports.EventPublisher; publishing never blocks on a slow client.
type Hub struct {
	logger   ports.Logger
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewHub creates a hub that pushes a summary every interval.
func NewHub(logger ports.Logger, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Hub{
		logger:   logger,
		interval: interval,
		now:      time.Now,
		clients:  make(map[*wsClient]struct{}),
	}
}

// Run pushes heartbeats and summaries until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context, src SummarySource) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			h.broadcast(wsMessage{Type: "heartbeat", Timestamp: h.now()})
			if src != nil {
				summary := newSummary(src.Snapshot(), src.PaperTrading())
				h.broadcast(wsMessage{Type: "summary", Timestamp: h.now(), Summary: &summary})
			}
		}
	}
}

// Publish implements ports.EventPublisher.
func (h *Hub) Publish(ctx context.Context, evt domain.Event) error {
	h.broadcast(wsMessage{
		Type:      "event",
		Timestamp: evt.Timestamp,
		Event:     &eventDTO{Type: string(evt.Type), Timestamp: evt.Timestamp, Payload: evt.Payload},
	})
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve upgrades the request and registers the connection.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn(c.Request.Context(), "Websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug(c.Request.Context(), "Websocket client connected", map[string]interface{}{"client": c.ClientIP()})

	if msg, err := json.Marshal(wsMessage{Type: "heartbeat", Timestamp: h.now()}); err == nil {
		client.send <- msg
	}

	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) broadcast(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(context.Background(), err, "Failed to encode websocket message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Slow consumer; drop it rather than stall the publisher.
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(client *wsClient) {
	defer func() {
		h.unregister(client)
		client.conn.Close()
	}()
	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
