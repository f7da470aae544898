// Package cache provides the short-TTL read cache for per-user progress
// aggregates.
//
// Primary backend: Redis (env REDIS_ADDR). Fallback: in-process memory
// (development only). Both backends store JSON and scope every key to one
// user so a write can invalidate that user's entries without touching
// anyone else's.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserCache is the read-through cache used by the progress service. Get
// reports (found=false, err=nil) on a miss; cache failures surface as
// errors so callers can decide to fall through to the store.
type UserCache interface {
	Get(ctx context.Context, userID uuid.UUID, key string, dest any) (bool, error)
	Set(ctx context.Context, userID uuid.UUID, key string, v any) error
	InvalidateUser(ctx context.Context, userID uuid.UUID) error
}

// NewUserCache picks the best available backend: Redis when addr is set,
// otherwise in-process memory with a warning.
func NewUserCache(redisAddr string, ttl time.Duration, log *zap.Logger) UserCache {
	if redisAddr == "" {
		log.Warn("REDIS_ADDR not set, using in-process progress cache")
		return NewMemoryCache(ttl)
	}
	return NewRedisCache(redisAddr, ttl)
}

func userPrefix(userID uuid.UUID) string {
	return "progress:user:" + userID.String() + ":"
}

func userKey(userID uuid.UUID, key string) string {
	return userPrefix(userID) + key
}
