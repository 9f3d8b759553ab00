package retry

import (
	"context"
	"encoding/json"
	"fmt"

	"ewallet-webhook-go/internal/models"

	"github.com/go-redis/redis/v8"
)

const DefaultRedisKey = "ewallet:deadletters"

// RedisSink appends dead letters as JSON to a Redis list for operators
type RedisSink struct {
	client redis.Cmdable
	key    string
}

func NewRedisSink(client redis.Cmdable, key string) *RedisSink {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSink{client: client, key: key}
}

func (r *RedisSink) SaveDeadLetter(ctx context.Context, letter models.DeadLetter) error {
	payload, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	if err := r.client.RPush(ctx, r.key, string(payload)).Err(); err != nil {
		return fmt.Errorf("failed to push dead letter %s: %w", letter.Reference, err)
	}
	return nil
}

// NewRedisClient builds a client from cfg, returning nil when Redis is disabled
func NewRedisClient(cfg models.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
