package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ProgressCache handles Redis ZSET operations for the cohort progress
// board: participants ranked by how far through the stage list they are.
// Feeds the experimenter dashboard without scanning participant documents.
type ProgressCache interface {
	SetStageIndex(ctx context.Context, cohortID, publicID string, stageIndex int) error
	GetBoard(ctx context.Context, cohortID string, limit int) ([]ProgressEntry, error)
	Remove(ctx context.Context, cohortID, publicID string) error
}

// ProgressEntry is a single progress board row
type ProgressEntry struct {
	PublicID   string `json:"publicId"`
	StageIndex int    `json:"stageIndex"`
	Rank       int    `json:"rank"`
}

type progressCache struct {
	client *redis.Client
}

// NewProgressCache creates a new progress cache
func NewProgressCache(client *redis.Client) ProgressCache {
	return &progressCache{
		client: client,
	}
}

func (c *progressCache) key(cohortID string) string {
	return fmt.Sprintf("cohort:%s:progress", cohortID)
}

func (c *progressCache) SetStageIndex(ctx context.Context, cohortID, publicID string, stageIndex int) error {
	return c.client.ZAdd(ctx, c.key(cohortID), redis.Z{
		Score:  float64(stageIndex),
		Member: publicID,
	}).Err()
}

func (c *progressCache) GetBoard(ctx context.Context, cohortID string, limit int) ([]ProgressEntry, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, c.key(cohortID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]ProgressEntry, len(results))
	for i, z := range results {
		entries[i] = ProgressEntry{
			PublicID:   z.Member.(string),
			StageIndex: int(z.Score),
			Rank:       i + 1,
		}
	}
	return entries, nil
}

func (c *progressCache) Remove(ctx context.Context, cohortID, publicID string) error {
	return c.client.ZRem(ctx, c.key(cohortID), publicID).Err()
}
