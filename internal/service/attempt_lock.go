package service

import (
	"context"
	"course_portal_backend/internal/util"
	"course_portal_backend/pkg/logger"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttemptLocker 跨实例互斥，保护同一尝试的创建、保存与提交
type AttemptLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// 仅当值仍为自己的令牌时删除，避免误删他人续上的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisAttemptLocker struct {
	Client *redis.Client
	TTL    time.Duration
	Wait   time.Duration
}

func NewRedisAttemptLocker(client *redis.Client, ttl time.Duration) *RedisAttemptLocker {
	return &RedisAttemptLocker{Client: client, TTL: ttl, Wait: ttl}
}

var errLockHeld = errors.New("lock held")

// Acquire 在 Wait 时间内以指数退避重试 SETNX，超时返回 util.ErrAttemptBusy
func (l *RedisAttemptLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = l.Wait

	err := backoff.Retry(func() error {
		ok, err := l.Client.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if errors.Is(err, errLockHeld) {
		return nil, util.ErrAttemptBusy
	}
	if err != nil {
		return nil, err
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.Client, []string{key}, token).Err(); err != nil {
			logger.Log.Warn("Failed to release attempt lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
