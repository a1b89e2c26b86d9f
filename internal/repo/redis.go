package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/acp-checkout/internal/checkout"
)

// RedisSessions stores sessions as JSON strings under <Prefix>session:<id>.
// A zero TTL keeps sessions until deleted.
type RedisSessions struct {
	Client redis.Cmdable
	Prefix string
	TTL    time.Duration
}

func (r RedisSessions) key(id string) string {
	return r.Prefix + "session:" + id
}

func (r RedisSessions) Put(ctx context.Context, s checkout.Session) error {
	if r.Client == nil {
		return errors.New("redis session store not configured")
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	if err := r.Client.Set(ctx, r.key(s.ID), payload, r.TTL).Err(); err != nil {
		return fmt.Errorf("store session %s: %w", s.ID, err)
	}
	return nil
}

func (r RedisSessions) Get(ctx context.Context, id string) (checkout.Session, error) {
	if r.Client == nil {
		return checkout.Session{}, errors.New("redis session store not configured")
	}
	payload, err := r.Client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return checkout.Session{}, checkout.ErrSessionNotFound
		}
		return checkout.Session{}, fmt.Errorf("load session %s: %w", id, err)
	}
	return decodeSession(id, payload)
}

func (r RedisSessions) Delete(ctx context.Context, id string) error {
	if r.Client == nil {
		return errors.New("redis session store not configured")
	}
	return r.Client.Del(ctx, r.key(id)).Err()
}

// Ping checks connectivity for readiness probes.
func (r RedisSessions) Ping(ctx context.Context) error {
	if r.Client == nil {
		return errors.New("redis session store not configured")
	}
	return r.Client.Ping(ctx).Err()
}

func decodeSession(id string, payload []byte) (checkout.Session, error) {
	var s checkout.Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return checkout.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return s.Clone(), nil
}
