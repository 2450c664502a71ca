package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"livesession/internal/model"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceCache mirrors each session's roster so UIs can poll occupancy
// without touching the session store
type PresenceCache interface {
	SetSnapshot(ctx context.Context, snap *model.SessionSnapshot) error
	GetSnapshot(ctx context.Context, sessionID string) (*model.SessionSnapshot, error)
}

type presenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPresenceCache creates a new presence cache
func NewPresenceCache(client *redis.Client) PresenceCache {
	return &presenceCache{
		client: client,
		ttl:    24 * time.Hour, // Rosters expire after 24h
	}
}

func presenceKey(sessionID string) string {
	return fmt.Sprintf("session:%s:presence", sessionID)
}

func (c *presenceCache) SetSnapshot(ctx context.Context, snap *model.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	ttl := c.ttl
	if snap.Status.IsTerminal() {
		// keep ended rosters around only briefly for late pollers
		ttl = time.Hour
	}
	_, err = setVersioned(ctx, c.client, presenceKey(snap.SessionID), data, snap.Version, ttl)
	return err
}

func (c *presenceCache) GetSnapshot(ctx context.Context, sessionID string) (*model.SessionSnapshot, error) {
	data, err := c.client.Get(ctx, presenceKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap model.SessionSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
