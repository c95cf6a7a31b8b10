package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-core/internal/config"
)

// RedisTracker stores typing flags as TTL'd keys, so stale entries expire on
// the server side in addition to the read-side staleness filter.
type RedisTracker struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedisTracker connects and verifies the redis backend.
func NewRedisTracker(cfg config.RedisConfig, window time.Duration) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisTracker{client: client, prefix: "chat:typing", window: window}, nil
}

func (t *RedisTracker) keyFor(roomID, userID int) string {
	return fmt.Sprintf("%s:%d:%d", t.prefix, roomID, userID)
}

// SetTyping writes or deletes the flag. The TTL equals the staleness window.
func (t *RedisTracker) SetTyping(ctx context.Context, roomID int, userID int, isTyping bool) error {
	key := t.keyFor(roomID, userID)
	if !isTyping {
		return t.client.Del(ctx, key).Err()
	}
	return t.client.Set(ctx, key, time.Now().UnixMilli(), t.window).Err()
}

// ListTyping scans the room's keys; expiry already pruned stale ones.
func (t *RedisTracker) ListTyping(ctx context.Context, roomID int) ([]int, error) {
	pattern := fmt.Sprintf("%s:%d:*", t.prefix, roomID)
	var ids []int
	iter := t.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		parts := strings.Split(iter.Val(), ":")
		userID, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			continue
		}
		ids = append(ids, userID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan typing keys: %w", err)
	}
	sort.Ints(ids)
	return ids, nil
}

// Close releases the redis connection.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
