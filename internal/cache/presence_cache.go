package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceCache tracks participant connection state in Redis. Presence keys
// carry a short TTL so a crashed client reads as disconnected without any
// cleanup pass. The waiting flag marks participants who reported themselves
// idle on a transfer stage.
type PresenceCache interface {
	SetConnected(ctx context.Context, privateID string) error
	SetDisconnected(ctx context.Context, privateID string) error
	IsConnected(ctx context.Context, privateID string) (bool, error)
	SetWaiting(ctx context.Context, privateID string, waiting bool) error
	IsWaiting(ctx context.Context, privateID string) (bool, error)
}

type presenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPresenceCache creates a new presence cache
func NewPresenceCache(client *redis.Client) PresenceCache {
	return &presenceCache{
		client: client,
		ttl:    2 * time.Minute,
	}
}

func (c *presenceCache) connKey(privateID string) string {
	return fmt.Sprintf("participant:%s:connected", privateID)
}

func (c *presenceCache) waitKey(privateID string) string {
	return fmt.Sprintf("participant:%s:waiting", privateID)
}

func (c *presenceCache) SetConnected(ctx context.Context, privateID string) error {
	return c.client.Set(ctx, c.connKey(privateID), "1", c.ttl).Err()
}

func (c *presenceCache) SetDisconnected(ctx context.Context, privateID string) error {
	return c.client.Del(ctx, c.connKey(privateID)).Err()
}

func (c *presenceCache) IsConnected(ctx context.Context, privateID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.connKey(privateID)).Result()
	return n > 0, err
}

func (c *presenceCache) SetWaiting(ctx context.Context, privateID string, waiting bool) error {
	if !waiting {
		return c.client.Del(ctx, c.waitKey(privateID)).Err()
	}
	return c.client.Set(ctx, c.waitKey(privateID), "1", 24*time.Hour).Err()
}

func (c *presenceCache) IsWaiting(ctx context.Context, privateID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.waitKey(privateID)).Result()
	return n > 0, err
}
