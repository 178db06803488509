package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fiamma-chain/AITradeNews/internal/config"
)

const (
	redisKeyPrefix = "aitrade:position:"
	redisEntryTTL  = 24 * time.Hour
)

// RedisCache 将仓位镜像持久化到 Redis，进程重启后仍可用作提示。
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache 根据配置连接 Redis 并做连通性探测。
func NewRedisCache(ctx context.Context, cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("position: 连接 Redis 失败: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, agent, venueName, asset string) (*Snapshot, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+cacheKey(agent, venueName, asset)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("position: 读取仓位镜像失败: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("position: 解析仓位镜像失败: %w", err)
	}
	return &snapshot, nil
}

func (c *RedisCache) Put(ctx context.Context, snapshot Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("position: 序列化仓位镜像失败: %w", err)
	}

	key := redisKeyPrefix + cacheKey(snapshot.Agent, snapshot.Venue, snapshot.Asset)
	if err := c.client.Set(ctx, key, payload, redisEntryTTL).Err(); err != nil {
		return fmt.Errorf("position: 写入仓位镜像失败: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, agent, venueName, asset string) error {
	if err := c.client.Del(ctx, redisKeyPrefix+cacheKey(agent, venueName, asset)).Err(); err != nil {
		return fmt.Errorf("position: 删除仓位镜像失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
