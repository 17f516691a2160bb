package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"agent-vault-go/pkg/chain"

	"github.com/go-redis/redis/v8"
)

const sessionKeyPrefix = "storage:session:"

// SessionCache 缓存地址到数据集 ID 的映射。只缓存“数据集存在”的结果。
type SessionCache interface {
	Get(ctx context.Context, address string) (datasetID string, ok bool, err error)
	Put(ctx context.Context, address, datasetID string) error
	// Forget 删除单个地址的缓存项。
	Forget(ctx context.Context, address string) error
	Reset(ctx context.Context) error
}

// redisSessionCache 是 SessionCache 的 Redis 实现，多个进程可共享。
type redisSessionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSessionCache 创建一个新的 Redis 会话缓存。
func NewRedisSessionCache(rdb *redis.Client, ttl time.Duration) SessionCache {
	return &redisSessionCache{rdb: rdb, ttl: ttl}
}

func (c *redisSessionCache) key(address string) string {
	return sessionKeyPrefix + chain.NormalizeAddress(address)
}

func (c *redisSessionCache) Get(ctx context.Context, address string) (string, bool, error) {
	id, err := c.rdb.Get(ctx, c.key(address)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (c *redisSessionCache) Put(ctx context.Context, address, datasetID string) error {
	return c.rdb.Set(ctx, c.key(address), datasetID, c.ttl).Err()
}

func (c *redisSessionCache) Forget(ctx context.Context, address string) error {
	return c.rdb.Del(ctx, c.key(address)).Err()
}

// Reset 删除所有会话键。
func (c *redisSessionCache) Reset(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// memorySessionCache 是进程内实现，未配置 Redis 时使用。
type memorySessionCache struct {
	mu       sync.RWMutex
	sessions map[string]string
}

// NewMemorySessionCache 创建一个进程内会话缓存。
func NewMemorySessionCache() SessionCache {
	return &memorySessionCache{sessions: make(map[string]string)}
}

func (c *memorySessionCache) Get(_ context.Context, address string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.sessions[chain.NormalizeAddress(address)]
	return id, ok, nil
}

func (c *memorySessionCache) Put(_ context.Context, address, datasetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[chain.NormalizeAddress(address)] = datasetID
	return nil
}

func (c *memorySessionCache) Forget(_ context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, chain.NormalizeAddress(address))
	return nil
}

func (c *memorySessionCache) Reset(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = make(map[string]string)
	return nil
}
