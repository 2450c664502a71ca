package cache

import (
	"context"
	"encoding/json"
	"livesession/internal/model"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionCache holds read copies of session records for API reads
type SessionCache interface {
	Set(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
}

type sessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionCache(client *redis.Client, ttl time.Duration) SessionCache {
	return &sessionCache{
		client: client,
		ttl:    ttl,
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

// Set keeps the newest version; an older copy arriving late is dropped
func (c *sessionCache) Set(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	_, err = setVersioned(ctx, c.client, sessionKey(session.ID), data, session.Version, c.ttl)
	return err
}

// Get returns nil, nil on a cache miss
func (c *sessionCache) Get(ctx context.Context, id string) (*model.Session, error) {
	data, err := c.client.Get(ctx, sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session model.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}
	return &session, nil
}
