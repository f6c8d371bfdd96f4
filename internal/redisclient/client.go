package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/apply_once.lua
var applyOnceScript string

type Client struct {
	rdb       *redis.Client
	applyOnce *redis.Script
}

// NewClient creates a new Redis client with the projection script loaded
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
		rdb:       rdb,
		applyOnce: redis.NewScript(applyOnceScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ApplyUpsert atomically records eventID as seen and, if it was new,
// upserts the member into the view index and hash. Returns false when the
// event was already applied, making duplicate delivery a no-op.
func (c *Client) ApplyUpsert(ctx context.Context, dedupeKey, indexKey, hashKey, eventID, memberID string, score float64, fields map[string]string) (bool, error) {
	argv := make([]interface{}, 0, 4+2*len(fields))
	argv = append(argv, eventID, "upsert", memberID, fmt.Sprintf("%d", int64(score)))
	for k, v := range fields {
		argv = append(argv, k, v)
	}

	return c.runApplyOnce(ctx, dedupeKey, indexKey, hashKey, argv)
}

// ApplySetUpsert is ApplyUpsert against a plain set index (no score).
func (c *Client) ApplySetUpsert(ctx context.Context, dedupeKey, indexKey, hashKey, eventID, memberID string, fields map[string]string) (bool, error) {
	argv := make([]interface{}, 0, 4+2*len(fields))
	argv = append(argv, eventID, "upsert", memberID, "")
	for k, v := range fields {
		argv = append(argv, k, v)
	}

	return c.runApplyOnce(ctx, dedupeKey, indexKey, hashKey, argv)
}

// ApplyUpdate atomically records eventID as seen and, if it was new,
// updates fields of an existing record without touching the index, so the
// member keeps the score it was inserted with. Updates to records already
// removed from the view are consumed without recreating them.
func (c *Client) ApplyUpdate(ctx context.Context, dedupeKey, indexKey, hashKey, eventID string, fields map[string]string) (bool, error) {
	argv := make([]interface{}, 0, 4+2*len(fields))
	argv = append(argv, eventID, "update", "", "")
	for k, v := range fields {
		argv = append(argv, k, v)
	}

	return c.runApplyOnce(ctx, dedupeKey, indexKey, hashKey, argv)
}

// ApplyRemove atomically records eventID as seen and, if it was new,
// removes the member from the view. sorted controls whether the index is
// a zset or a plain set.
func (c *Client) ApplyRemove(ctx context.Context, dedupeKey, indexKey, hashKey, eventID, memberID string, sorted bool) (bool, error) {
	score := ""
	if sorted {
		score = "0"
	}
	return c.runApplyOnce(ctx, dedupeKey, indexKey, hashKey,
		[]interface{}{eventID, "remove", memberID, score})
}

func (c *Client) runApplyOnce(ctx context.Context, dedupeKey, indexKey, hashKey string, argv []interface{}) (bool, error) {
	result, err := c.applyOnce.Run(ctx, c.rdb, []string{dedupeKey, indexKey, hashKey}, argv...).Result()
	if err != nil {
		return false, fmt.Errorf("apply once script failed: %w", err)
	}

	applied, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return applied == 1, nil
}

// ZRangeMembers returns members of a sorted index, oldest first
func (c *Client) ZRangeMembers(ctx context.Context, indexKey string) ([]string, error) {
	return c.rdb.ZRange(ctx, indexKey, 0, -1).Result()
}

// SetMembers returns members of a plain set index
func (c *Client) SetMembers(ctx context.Context, indexKey string) ([]string, error) {
	return c.rdb.SMembers(ctx, indexKey).Result()
}

// GetHash returns a projected record
func (c *Client) GetHash(ctx context.Context, hashKey string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, hashKey).Result()
}

// SetHashFields updates fields of a projected record
func (c *Client) SetHashFields(ctx context.Context, hashKey string, fields map[string]string) error {
	args := make([]interface{}, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	return c.rdb.HSet(ctx, hashKey, args...).Err()
}

// CacheSet stores a JSON value with TTL (menu read cache)
func (c *Client) CacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf("cache:%s", key), data, ttl).Err()
}

// CacheGet loads a JSON value from the cache into dest. Returns false on
// a miss.
func (c *Client) CacheGet(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf("cache:%s", key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, dest)
}

// CacheInvalidate drops a cached value
func (c *Client) CacheInvalidate(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("cache:%s", key)).Err()
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}
