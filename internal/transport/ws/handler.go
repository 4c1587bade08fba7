package ws

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cardio-ai/triage/internal/dialogue"
)

// Handler upgrades HTTP requests to WebSocket sessions and dispatches inbound
// events to the dialogue machine. Each connection gets its own session id;
// closing the socket is the disconnect event.
type Handler struct {
	machine  *dialogue.Machine
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHandler(machine *dialogue.Machine, hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{
		machine: machine,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// inbound is the raw inbound frame; Data stays undecoded until the event type
// picks its payload shape.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessionID := uuid.NewString()
	h.hub.register(sessionID, conn)
	defer func() {
		h.hub.unregister(sessionID)
		conn.Close()
		h.machine.HandleDisconnect(sessionID)
	}()

	ctx := r.Context()
	h.machine.HandleConnect(ctx, sessionID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", zap.String("session_id", sessionID), zap.Error(err))
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.hub.BotMessage(sessionID, "Unexpected input.")
			continue
		}

		switch msg.Event {
		case "start_consult":
			h.machine.HandleStartConsult(ctx, sessionID, textField(msg.Data, "name", "age", "email", "text"))
		case "patient_symptoms":
			h.machine.HandlePatientSymptoms(ctx, sessionID, textField(msg.Data, "symptoms_text", "text"))
		case "answer_question":
			var p struct {
				Symptoms     []string `json:"symptoms"`
				AnswerText   string   `json:"answerText"`
				Answer       string   `json:"answer"`
				QuestionText string   `json:"questionText"`
				Text         string   `json:"text"`
			}
			if err := json.Unmarshal(msg.Data, &p); err != nil {
				h.hub.BotMessage(sessionID, "Unexpected input.")
				continue
			}
			answer := p.AnswerText
			if answer == "" {
				answer = p.Answer
			}
			question := p.QuestionText
			if question == "" {
				question = p.Text
			}
			h.machine.HandleAnswerQuestion(ctx, sessionID, p.Symptoms, answer, question)
		case "disconnect":
			return
		default:
			h.hub.BotMessage(sessionID, "Unexpected input.")
		}
	}
}

// textField accepts either a bare JSON string or an object and returns the
// first non-empty field among keys. Clients send both shapes.
func textField(data json.RawMessage, keys ...string) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return ""
	}
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
