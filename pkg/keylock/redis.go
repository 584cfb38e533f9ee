package keylock

import (
	"context"
	"time"

	"go.uber.org/zap"

	"shift-swap/backend/pkg/redis"
)

// redisBackend Redis 上需要的最小能力，便于测试替换
type redisBackend interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) error
}

var _ redisBackend = (*redis.Client)(nil)

// Redis 基于 Redis SET NX PX 的分布式按 key 互斥锁
// ttl 需大于单次事务耗时；持有者崩溃时锁在 ttl 后自动释放
type Redis struct {
	backend redisBackend
	ttl     time.Duration
	retry   time.Duration
	logger  *zap.Logger
}

// NewRedis 创建分布式 Locker
func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	return newRedis(client, ttl, logger)
}

func newRedis(backend redisBackend, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{backend: backend, ttl: ttl, retry: 20 * time.Millisecond, logger: logger}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	wait := r.retry
	for {
		token, ok, err := r.backend.TryLock(ctx, key, r.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// 释放不跟随请求 ctx，请求取消后仍需归还锁
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := r.backend.Unlock(ctx, key, token); err != nil {
					r.logger.Warn("释放分布式锁失败", zap.String("key", key), zap.Error(err))
				}
			}, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if wait < 200*time.Millisecond {
			wait *= 2
		}
	}
}
