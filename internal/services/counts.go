package services

import (
	"context"
	"fmt"
	"time"

	"github.com/microblog/microblog/pkg/cache"
	"github.com/microblog/microblog/pkg/logger"
)

// CountCache keeps follower/following cardinalities in Redis. Writers bump
// the user's generation and delete the keys after commit; readers refill from
// the database only if the generation they saw before loading is unchanged,
// so a load that overlapped a commit never caches its stale result. A nil
// *CountCache disables caching.
type CountCache struct {
	cache  *cache.RedisClient
	ttl    time.Duration
	logger *logger.Logger
}

func NewCountCache(cache *cache.RedisClient, ttl time.Duration, logger *logger.Logger) *CountCache {
	return &CountCache{cache: cache, ttl: ttl, logger: logger}
}

func FollowersCountKey(userID uint) string {
	return fmt.Sprintf("user:%d:followers_count", userID)
}

func FollowingCountKey(userID uint) string {
	return fmt.Sprintf("user:%d:following_count", userID)
}

// GenerationKey counts invalidations of a user's cached counts.
func GenerationKey(userID uint) string {
	return fmt.Sprintf("user:%d:gen", userID)
}

func (c *CountCache) get(ctx context.Context, userID uint, key string, load func(context.Context) (int64, error)) (int64, error) {
	if c == nil || c.cache == nil {
		return load(ctx)
	}
	log := c.logger.WithField("key", key)

	n, err := c.cache.GetInt64(ctx, key)
	if err == nil {
		return n, nil
	}
	if !cache.IsMiss(err) {
		log.WithError(err).Warn("Count cache read failed")
		return load(ctx)
	}

	genKey := GenerationKey(userID)
	gen, err := c.cache.Generation(ctx, genKey)
	if err != nil {
		log.WithError(err).Warn("Count cache read failed")
		return load(ctx)
	}

	n, err = load(ctx)
	if err != nil {
		return 0, err
	}
	written, err := c.cache.SetIfGeneration(ctx, genKey, gen, key, n, c.ttl)
	if err != nil {
		log.WithError(err).Warn("Count cache write failed")
	} else if !written {
		log.Debug("Count changed while loading; not cached")
	}
	return n, nil
}

// Invalidate drops both counts for every user in ids.
func (c *CountCache) Invalidate(ctx context.Context, ids ...uint) {
	if c == nil || c.cache == nil || len(ids) == 0 {
		return
	}
	genKeys := make([]string, 0, len(ids))
	keys := make([]string, 0, 2*len(ids))
	for _, id := range ids {
		genKeys = append(genKeys, GenerationKey(id))
		keys = append(keys, FollowersCountKey(id), FollowingCountKey(id))
	}
	if err := c.cache.Invalidate(ctx, genKeys, keys...); err != nil {
		c.logger.WithError(err).WithField("keys", keys).Error("Failed to invalidate count cache")
	}
}
