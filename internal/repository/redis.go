package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/SettleGuard/settleguard/internal/config"
	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	Client        *redis.Client
	lockKeyPrefix string
	lockTTL       time.Duration
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := time.Duration(cfg.Redis.DayLockTTLSecs) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &RedisClient{
		Client:        rdb,
		lockKeyPrefix: cfg.Redis.DayLockKey,
		lockTTL:       ttl,
	}, nil
}

// AcquireDayLock takes the advisory lock serializing integrity runs per
// accounting day. Returns false when another run holds the lock.
func (r *RedisClient) AcquireDayLock(ctx context.Context, day string) (bool, error) {
	return r.Client.SetNX(ctx, r.lockKeyPrefix+day, time.Now().UTC().Format(time.RFC3339), r.lockTTL).Result()
}

func (r *RedisClient) ReleaseDayLock(ctx context.Context, day string) error {
	return r.Client.Del(ctx, r.lockKeyPrefix+day).Err()
}
