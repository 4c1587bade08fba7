package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cardio-ai/triage/internal/dialogue"
)

// envelope is the wire frame for every event in both directions.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub tracks live connections by session id and delivers outbound events.
// It implements dialogue.Emitter.
type Hub struct {
	mu     sync.Mutex
	conns  map[string]*connection
	logger *zap.Logger
}

// connection serializes writes; gorilla connections allow one writer at a time.
type connection struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{conns: make(map[string]*connection), logger: logger}
}

func (h *Hub) register(sessionID string, ws *websocket.Conn) {
	h.mu.Lock()
	h.conns[sessionID] = &connection{ws: ws}
	h.mu.Unlock()
}

func (h *Hub) unregister(sessionID string) {
	h.mu.Lock()
	delete(h.conns, sessionID)
	h.mu.Unlock()
}

func (h *Hub) send(sessionID, event string, data any) {
	h.mu.Lock()
	c, ok := h.conns[sessionID]
	h.mu.Unlock()
	if !ok {
		return
	}
	c.mu.Lock()
	err := c.ws.WriteJSON(envelope{Event: event, Data: data})
	c.mu.Unlock()
	if err != nil {
		h.logger.Warn("websocket write failed",
			zap.String("session_id", sessionID),
			zap.String("event", event),
			zap.Error(err))
	}
}

func (h *Hub) BotMessage(sessionID, msg string) {
	h.send(sessionID, "bot_message", map[string]any{"msg": msg})
}

func (h *Hub) AskQuestion(sessionID string, q dialogue.Question) {
	h.send(sessionID, "ask_question", map[string]any{
		"symptoms":     q.Symptoms,
		"qIndex":       q.Index,
		"text":         q.Text,
		"questionText": q.Text,
		"question":     q.Phrased,
	})
}
