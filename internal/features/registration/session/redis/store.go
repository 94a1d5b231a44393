// Package redis provides a Redis-backed session store for multi-instance
// deployments, where dialogue state must survive instance failover.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"tribebot-backend/internal/features/registration/session"
)

type redisStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewStore wraps a Redis client as a session store. Sessions expire after
// ttl so abandoned dialogues do not accumulate.
func NewStore(client *goredis.Client, ttl time.Duration) session.Store {
	return &redisStore{client: client, ttl: ttl}
}

func (r *redisStore) key(externalID int64) string {
	return fmt.Sprintf("session:%d", externalID)
}

func (r *redisStore) Get(ctx context.Context, externalID int64) (*session.Session, error) {
	v, err := r.client.Get(ctx, r.key(externalID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var s session.Session
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

func (r *redisStore) Put(ctx context.Context, s *session.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(s.ExternalID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (r *redisStore) Delete(ctx context.Context, externalID int64) error {
	if err := r.client.Del(ctx, r.key(externalID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
