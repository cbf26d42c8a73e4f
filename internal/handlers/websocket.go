package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/interfaces"
	"github.com/easyvinted/publisher/internal/models"
)

const writeTimeout = 5 * time.Second

// EventMessage is the JSON frame sent to WebSocket clients
type EventMessage struct {
	Type      string              `json:"type"`
	JobID     string              `json:"job_id,omitempty"`
	ArticleID string              `json:"article_id,omitempty"`
	Status    string              `json:"status,omitempty"`
	URL       string              `json:"url,omitempty"`
	Error     string              `json:"error,omitempty"`
	Report    *models.BatchReport `json:"report,omitempty"`
	Time      time.Time           `json:"time"`
}

// NewEventMessage flattens a bus event into a client frame
func NewEventMessage(event interfaces.Event) EventMessage {
	msg := EventMessage{Type: string(event.Type), Time: time.Now().UTC()}

	switch p := event.Payload.(type) {
	case models.JobEvent:
		msg.JobID = p.JobID
		msg.ArticleID = p.ArticleID
		msg.Status = string(p.Status)
		msg.URL = p.VintedURL
		msg.Error = p.Error
		if !p.Time.IsZero() {
			msg.Time = p.Time
		}
	case *models.BatchReport:
		msg.Report = p
		if !p.FinishedAt.IsZero() {
			msg.Time = p.FinishedAt
		} else if !p.StartedAt.IsZero() {
			msg.Time = p.StartedAt
		}
	}
	return msg
}

// WebSocketHandler fans bus events out to connected clients
type WebSocketHandler struct {
	logger      arbor.ILogger
	upgrader    websocket.Upgrader
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex
	mu          sync.RWMutex
}

// NewWebSocketHandler creates a handler with no clients.
// Browsers are accepted only from allowedOrigins ("*" accepts any).
func NewWebSocketHandler(logger arbor.ILogger, allowedOrigins ...string) *WebSocketHandler {
	return &WebSocketHandler{
		logger:      logger,
		clients:     make(map[*websocket.Conn]bool),
		clientMutex: make(map[*websocket.Conn]*sync.Mutex),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return OriginAllowed(r.Header.Get("Origin"), allowedOrigins)
			},
		},
	}
}

// SubscribeToEvents broadcasts every publisher event
func (h *WebSocketHandler) SubscribeToEvents(eventService interfaces.EventService) error {
	for _, eventType := range interfaces.AllEventTypes {
		if err := eventService.Subscribe(eventType, h.handleEvent); err != nil {
			return fmt.Errorf("failed to subscribe websocket to %s: %w", eventType, err)
		}
	}
	return nil
}

func (h *WebSocketHandler) handleEvent(ctx context.Context, event interfaces.Event) error {
	h.Broadcast(NewEventMessage(event))
	return nil
}

// HandleWebSocket upgrades the connection and keeps it registered until the client leaves
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	// Read until the client goes away; inbound frames are ignored
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to all connected clients
func (h *WebSocketHandler) Broadcast(msg EventMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal event message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("event_type", msg.Type).Msg("Failed to send event to client")
		}
	}
}
