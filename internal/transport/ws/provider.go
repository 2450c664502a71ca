package ws

import (
	"context"
	"livesession/internal/model"
	"livesession/internal/service"
)

// Provider is the in-process transport: join tokens are signed locally and
// the hub carries the session's real-time channel.
type Provider struct {
	hub     *Hub
	authSvc *service.AuthService
}

// NewProvider creates a transport backed by the hub (implements service.Transport)
func NewProvider(hub *Hub, authSvc *service.AuthService) *Provider {
	return &Provider{hub: hub, authSvc: authSvc}
}

func (p *Provider) IssueJoinToken(ctx context.Context, sessionID, userID string, role model.Role) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.authSvc.GenerateJoinToken(sessionID, userID, role)
}

func (p *Provider) DropParticipant(ctx context.Context, sessionID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.hub.Disconnect(sessionID, userID)
	return nil
}

func (p *Provider) DropAllParticipants(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.hub.DisconnectSession(sessionID)
	return nil
}
