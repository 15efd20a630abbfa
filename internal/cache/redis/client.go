package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/pkg/logger"
)

const keyPrefix = "answer:"

// Client is the durable cache tier. Entries are stored without a Redis TTL;
// freshness is decided by the lookup's time filter, and stale entries are
// simply overwritten on the next Set for the same key.
type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Get(ctx context.Context, key string) (*models.CacheEntry, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	return &entry, true, nil
}

func (c *Client) Set(ctx context.Context, key string, entry *models.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}

	logger.Debug("Answer cached", zap.String("key", key))
	return nil
}

// RecordHit increments the hit counter and refreshes last-accessed for one
// retrieval. A concurrent writer replacing the entry between read and
// write loses a count; single-statement granularity is all the durable
// store promises.
func (c *Client) RecordHit(ctx context.Context, key string, at time.Time) error {
	entry, found, err := c.Get(ctx, key)
	if err != nil || !found {
		return err
	}

	entry.HitCount++
	entry.LastAccessed = at

	return c.Set(ctx, key, entry)
}

type Stats struct {
	Entries     int
	LiveEntries int
	TotalHits   int
}

// Scan walks all answer keys for the analytics cache view.
func (c *Client) Scan(ctx context.Context, ttl time.Duration) (*Stats, error) {
	stats := &Stats{}
	now := time.Now()

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := c.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			logger.Warn("Failed to read cache key during scan", zap.Error(err))
			continue
		}

		var entry models.CacheEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}

		stats.Entries++
		stats.TotalHits += entry.HitCount
		if now.Sub(entry.CreatedAt) < ttl {
			stats.LiveEntries++
		}
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	return stats, nil
}
