package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Server -> client message types
const (
	MsgParticipantJoined MessageType = "participant_joined"
	MsgParticipantLeft   MessageType = "participant_left"
	MsgSessionEnded      MessageType = "session_ended"
	MsgPreviewExpired    MessageType = "preview_expired"
	MsgHeartbeat         MessageType = "heartbeat"
	MsgError             MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub manages WebSocket connections for live sessions
type Hub struct {
	// sessionID -> userID -> conn
	conns map[string]map[string]*Connection

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
}

// Connection represents one participant's socket
type Connection struct {
	SessionID string
	UserID    string
	Send      chan []byte
	Hub       *Hub
}

// BroadcastMessage is a message to deliver. Close drops the target
// connections after the message is queued.
type BroadcastMessage struct {
	SessionID string
	ToUser    string // empty means everyone in the session
	Message   *Message
	Close     bool
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	h := &Hub{
		conns:      make(map[string]map[string]*Connection),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.SessionID] == nil {
				h.conns[conn.SessionID] = make(map[string]*Connection)
			}
			// a reconnect replaces the old socket
			if old, ok := h.conns[conn.SessionID][conn.UserID]; ok && old != conn {
				close(old.Send)
			}
			h.conns[conn.SessionID][conn.UserID] = conn
			h.mu.Unlock()
			log.Printf("Participant %s connected to session %s", conn.UserID, conn.SessionID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if h.remove(conn) {
				log.Printf("Participant %s disconnected from session %s", conn.UserID, conn.SessionID)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			h.deliver(msg)
			h.mu.Unlock()
		}
	}
}

// deliver must be called with h.mu held
func (h *Hub) deliver(msg *BroadcastMessage) {
	conns, ok := h.conns[msg.SessionID]
	if !ok {
		return
	}

	var targets []*Connection
	if msg.ToUser != "" {
		if conn, ok := conns[msg.ToUser]; ok {
			targets = append(targets, conn)
		}
	} else {
		for _, conn := range conns {
			targets = append(targets, conn)
		}
	}

	var data []byte
	if msg.Message != nil {
		data, _ = json.Marshal(msg.Message)
	}
	for _, conn := range targets {
		if data != nil {
			select {
			case conn.Send <- data:
			default:
				// Drop message if buffer full
			}
		}
		if msg.Close {
			h.remove(conn)
		}
	}
}

// remove must be called with h.mu held
func (h *Hub) remove(conn *Connection) bool {
	conns, ok := h.conns[conn.SessionID]
	if !ok {
		return false
	}
	existing, ok := conns[conn.UserID]
	if !ok || existing != conn {
		return false
	}
	delete(conns, conn.UserID)
	close(conn.Send)
	if len(conns) == 0 {
		delete(h.conns, conn.SessionID)
	}
	return true
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Connected reports whether userID has an open socket in the session
func (h *Hub) Connected(sessionID, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[sessionID][userID]
	return ok
}

// BroadcastToSession sends a message to everyone in a session (implements service.Broadcaster)
func (h *Hub) BroadcastToSession(sessionID string, msgType string, payload interface{}) {
	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		Message:   envelope(msgType, payload),
	}
}

// SendToParticipant sends a message to one participant (implements service.Broadcaster)
func (h *Hub) SendToParticipant(sessionID, userID string, msgType string, payload interface{}) {
	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		ToUser:    userID,
		Message:   envelope(msgType, payload),
	}
}

// Disconnect closes the participant's socket after any queued messages
func (h *Hub) Disconnect(sessionID, userID string) {
	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		ToUser:    userID,
		Close:     true,
	}
}

// DisconnectSession closes every socket in a session
func (h *Hub) DisconnectSession(sessionID string) {
	h.broadcast <- &BroadcastMessage{
		SessionID: sessionID,
		Close:     true,
	}
}

func envelope(msgType string, payload interface{}) *Message {
	data, _ := json.Marshal(payload)
	return &Message{
		Type:    MessageType(msgType),
		Payload: data,
	}
}
