package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PAIR-code/deliberate-lab/internal/model"
)

// CohortCache mirrors hot cohort state in Redis: the metadata read on every
// join and the stage unlock map read on every gate check and WebSocket
// connect. The Mongo document stays authoritative; the mirror is refreshed
// whenever the gate writes.
type CohortCache interface {
	SetMeta(ctx context.Context, cohortID string, meta *model.CohortMeta) error
	GetMeta(ctx context.Context, cohortID string) (*model.CohortMeta, error)
	SetStageUnlocked(ctx context.Context, cohortID, stageID string) error
	IsStageUnlocked(ctx context.Context, cohortID, stageID string) (bool, error)
	// MarkChatFired records that an agent's initial chat messages went out
	// for a stage. Returns true the first time only.
	MarkChatFired(ctx context.Context, cohortID, stageID, publicID string) (bool, error)
	Delete(ctx context.Context, cohortID string) error
}

type cohortCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCohortCache creates a new cohort cache
func NewCohortCache(client *redis.Client) CohortCache {
	return &cohortCache{
		client: client,
		ttl:    7 * 24 * time.Hour, // experiment runs span days, not hours
	}
}

func (c *cohortCache) metaKey(cohortID string) string {
	return fmt.Sprintf("cohort:%s", cohortID)
}

func (c *cohortCache) unlockKey(cohortID string) string {
	return fmt.Sprintf("cohort:%s:unlocked", cohortID)
}

func (c *cohortCache) chatFiredKey(cohortID, stageID string) string {
	return fmt.Sprintf("cohort:%s:stage:%s:chatFired", cohortID, stageID)
}

func (c *cohortCache) SetMeta(ctx context.Context, cohortID string, meta *model.CohortMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.metaKey(cohortID), data, c.ttl).Err()
}

func (c *cohortCache) GetMeta(ctx context.Context, cohortID string) (*model.CohortMeta, error) {
	data, err := c.client.Get(ctx, c.metaKey(cohortID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta model.CohortMeta
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *cohortCache) SetStageUnlocked(ctx context.Context, cohortID, stageID string) error {
	return c.client.SAdd(ctx, c.unlockKey(cohortID), stageID).Err()
}

func (c *cohortCache) IsStageUnlocked(ctx context.Context, cohortID, stageID string) (bool, error) {
	return c.client.SIsMember(ctx, c.unlockKey(cohortID), stageID).Result()
}

func (c *cohortCache) MarkChatFired(ctx context.Context, cohortID, stageID, publicID string) (bool, error) {
	added, err := c.client.SAdd(ctx, c.chatFiredKey(cohortID, stageID), publicID).Result()
	if err != nil {
		return false, err
	}
	return added > 0, nil
}

func (c *cohortCache) Delete(ctx context.Context, cohortID string) error {
	return c.client.Del(ctx, c.metaKey(cohortID), c.unlockKey(cohortID)).Err()
}
