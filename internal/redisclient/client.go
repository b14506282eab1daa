package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/add_visitor.lua
var addVisitorScript string

//go:embed scripts/drain.lua
var drainScript string

//go:embed scripts/ack.lua
var ackScript string

//go:embed scripts/forget.lua
var forgetScript string

//go:embed scripts/unlock.lua
var unlockScript string

type Client struct {
	rdb          *redis.Client
	addVisitor   *redis.Script
	drainScript  *redis.Script
	ackScript    *redis.Script
	forgetScript *redis.Script
	unlock       *redis.Script

	mu     sync.Mutex
	owners map[string]string
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:          rdb,
		addVisitor:   redis.NewScript(addVisitorScript),
		drainScript:  redis.NewScript(drainScript),
		ackScript:    redis.NewScript(ackScript),
		forgetScript: redis.NewScript(forgetScript),
		unlock:       redis.NewScript(unlockScript),
		owners:       make(map[string]string),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// AcquireLock takes lockKey for ttl. It reports false when someone else
// holds it.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, lockName(lockKey), token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}

	c.mu.Lock()
	c.owners[lockKey] = token
	c.mu.Unlock()
	return true, nil
}

// ReleaseLock drops lockKey if this client still owns it. A lock that
// expired and was taken by another process is left alone.
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	c.mu.Lock()
	token, ok := c.owners[lockKey]
	delete(c.owners, lockKey)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.unlock.Run(ctx, c.rdb, []string{lockName(lockKey)}, token).Err()
}

func lockName(key string) string { return fmt.Sprintf("lock:%s", key) }

// GetJSON loads a cached value into dest. It reports false on a cache miss.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf("cache:%s", key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON caches value under key for ttl
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s for cache: %w", key, err)
	}
	return c.rdb.Set(ctx, fmt.Sprintf("cache:%s", key), data, ttl).Err()
}
