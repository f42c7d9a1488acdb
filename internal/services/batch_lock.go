package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/contentplan-backend/internal/platform/logger"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisBatchLocker holds batch keys with SET NX PX.
type RedisBatchLocker struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
}

func NewRedisBatchLocker(log *logger.Logger, rdb goredis.UniversalClient, prefix string) *RedisBatchLocker {
	if prefix == "" {
		prefix = "contentplan:batch-lock:"
	}
	return &RedisBatchLocker{
		log:    log.With("service", "BatchLocker"),
		rdb:    rdb,
		prefix: prefix,
	}
}

func (l *RedisBatchLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if l == nil || l.rdb == nil {
		return nil, false, fmt.Errorf("batch locker not initialized")
	}
	full := l.prefix + key
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{full}, token).Err(); err != nil && err != goredis.Nil {
			l.log.Warn("Release batch lock failed", "key", full, "error", err)
		}
	}
	return release, true, nil
}
