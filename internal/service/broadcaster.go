package service

import (
	"context"
	"livesession/internal/model"
)

// Event types pushed to participant sockets
const (
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventSessionEnded      = "session_ended"
	EventPreviewExpired    = "preview_expired"
)

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastToSession(sessionID string, msgType string, payload interface{})
	SendToParticipant(sessionID, userID string, msgType string, payload interface{})
}

// Transport is the real-time media provider the session hands users off to
type Transport interface {
	IssueJoinToken(ctx context.Context, sessionID, userID string, role model.Role) (string, error)
	DropParticipant(ctx context.Context, sessionID, userID string) error
	DropAllParticipants(ctx context.Context, sessionID string) error
}
