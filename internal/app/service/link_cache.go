package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/snaplink/snaplink/internal/app/model"
	"go.uber.org/zap"
)

const (
	linkCacheKeyPrefix = "link:"
	linkCacheTTL       = 24 * time.Hour
)

// LinkCache is a Redis read-through cache for the resolve hot path.
// It stores the immutable parts of a link (target, owner, expiry);
// click counts are never served from here. All cache failures degrade
// to a miss so Redis outages only cost latency.
type LinkCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewLinkCache wraps the given Redis client. A nil client yields a
// cache that always misses, which keeps tests and minimal deployments
// simple.
func NewLinkCache(rdb *redis.Client, logger *zap.Logger) *LinkCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkCache{rdb: rdb, logger: logger}
}

// Get returns the cached link, or nil on miss.
func (c *LinkCache) Get(ctx context.Context, code string) *model.Link {
	if c.rdb == nil {
		return nil
	}

	data, err := c.rdb.Get(ctx, linkCacheKeyPrefix+code).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("link cache read failed", zap.String("code", code), zap.Error(err))
		}
		return nil
	}

	var link model.Link
	if err := json.Unmarshal(data, &link); err != nil {
		c.logger.Warn("link cache entry corrupt", zap.String("code", code), zap.Error(err))
		return nil
	}
	return &link
}

// Set stores the link. Entries for expiring links live no longer than
// the link itself.
func (c *LinkCache) Set(ctx context.Context, link *model.Link) {
	if c.rdb == nil {
		return
	}

	ttl := linkCacheTTL
	if link.ExpiresAt != nil {
		until := time.Until(*link.ExpiresAt)
		if until <= 0 {
			return
		}
		if until < ttl {
			ttl = until
		}
	}

	data, err := json.Marshal(link)
	if err != nil {
		c.logger.Warn("link cache marshal failed", zap.String("code", link.Code), zap.Error(err))
		return
	}

	if err := c.rdb.Set(ctx, linkCacheKeyPrefix+link.Code, data, ttl).Err(); err != nil {
		c.logger.Warn("link cache write failed", zap.String("code", link.Code), zap.Error(err))
	}
}
