package ws

import (
	"context"
	"encoding/json"
	"livesession/internal/model"
	"livesession/internal/service"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	heartbeatWait  = 3 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// Presence answers whether a participant still belongs in a session
type Presence interface {
	Heartbeat(ctx context.Context, sessionID, userID string) (*model.HeartbeatStatus, error)
}

// Handler handles WebSocket connections
type Handler struct {
	hub      *Hub
	authSvc  *service.AuthService
	presence Presence
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, authSvc *service.AuthService, presence Presence) *Handler {
	return &Handler{
		hub:      hub,
		authSvc:  authSvc,
		presence: presence,
	}
}

// SessionWS handles GET /v1/ws/sessions/{id}?token=<join token>
func (h *Handler) SessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	token := r.URL.Query().Get("token")

	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authSvc.ValidateJoinToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	if claims.SessionID != sessionID {
		http.Error(w, "token not valid for this session", http.StatusForbidden)
		return
	}

	status, err := h.presence.Heartbeat(r.Context(), sessionID, claims.UserID)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}
	if !status.Present || status.Denial != nil {
		http.Error(w, "not a participant of this session", http.StatusForbidden)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	conn := &Connection{
		SessionID: sessionID,
		UserID:    claims.UserID,
		Send:      make(chan []byte, 256),
		Hub:       h.hub,
	}

	h.hub.Register(conn)

	log.Printf("Participant %s (%s) connected to session %s via WebSocket", claims.UserID, claims.Role, sessionID)

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

// readPump answers heartbeat messages. Closing the socket does not leave
// the session; clients call the leave endpoint for that.
func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.hub.SendToParticipant(conn.SessionID, conn.UserID, string(MsgError), map[string]string{"error": "invalid message"})
			continue
		}
		if msg.Type == MsgHeartbeat {
			h.heartbeat(conn)
		}
	}
}

func (h *Handler) heartbeat(conn *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), heartbeatWait)
	defer cancel()

	status, err := h.presence.Heartbeat(ctx, conn.SessionID, conn.UserID)
	if err != nil {
		log.Printf("Heartbeat failed for %s in session %s: %v", conn.UserID, conn.SessionID, err)
		h.hub.SendToParticipant(conn.SessionID, conn.UserID, string(MsgError), map[string]string{"error": "heartbeat unavailable"})
		return
	}
	h.hub.SendToParticipant(conn.SessionID, conn.UserID, string(MsgHeartbeat), status)
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
