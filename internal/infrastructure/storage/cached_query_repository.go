package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/oasst/treemanager/internal/domain/repository"
	"github.com/oasst/treemanager/internal/infrastructure/cache"
	"github.com/oasst/treemanager/internal/infrastructure/logger"
)

// recentReplyTaskParentsCacheKey is the single Redis key holding the
// materialised recent_reply_task_parents set. One key is enough: the set is
// re-derived on every miss and the TTL keeps it from outliving the window
// it approximates.
const recentReplyTaskParentsCacheKey = "treemgr:recent_reply_task_parents"

// CachedQueryRepository decorates a QueryRepository with a Redis-backed
// cache of RecentReplyTaskParents, the one query the dispatcher runs on
// every REPLY selection. It falls through to the wrapped repository on a
// cache miss, a Redis error, or when no cache is configured at all.
type CachedQueryRepository struct {
	repository.QueryRepository
	cache *cache.RedisCache
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedQueryRepository wraps inner with a cache of recent reply task
// parents. redisCache may be nil, in which case every call falls through to
// inner unchanged.
func NewCachedQueryRepository(inner repository.QueryRepository, redisCache *cache.RedisCache, ttl time.Duration, log *logger.Logger) *CachedQueryRepository {
	return &CachedQueryRepository{QueryRepository: inner, cache: redisCache, ttl: ttl, log: log}
}

func (c *CachedQueryRepository) RecentReplyTaskParents(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	if c.cache == nil {
		return c.QueryRepository.RecentReplyTaskParents(ctx, since)
	}

	if raw, err := c.cache.Get(ctx, recentReplyTaskParentsCacheKey); err == nil {
		var ids []uuid.UUID
		if json.Unmarshal([]byte(raw), &ids) == nil {
			return ids, nil
		}
	}

	ids, err := c.QueryRepository.RecentReplyTaskParents(ctx, since)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(ids); err == nil {
		if err := c.cache.Set(ctx, recentReplyTaskParentsCacheKey, string(encoded), c.ttl); err != nil && c.log != nil {
			c.log.Warn("failed to cache recent reply task parents", "error", err)
		}
	}

	return ids, nil
}
