package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "career-assistant:history:"

// RedisHistory keeps transcripts in Redis lists, one per session.
type RedisHistory struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisClient builds a client from a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// NewRedisHistory returns a store whose keys expire ttl after their last append.
func NewRedisHistory(client *redis.Client, keyPrefix string, ttl time.Duration) (*RedisHistory, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisHistory{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}, nil
}

func (h *RedisHistory) key(sessionID string) string {
	return h.keyPrefix + sessionID
}

func (h *RedisHistory) Append(ctx context.Context, sessionID string, turn Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn for session %s: %w", sessionID, err)
	}

	key := h.key(sessionID)
	pipe := h.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if h.ttl > 0 {
		pipe.Expire(ctx, key, h.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn for session %s: %w", sessionID, err)
	}
	return nil
}

func (h *RedisHistory) Load(ctx context.Context, sessionID string) ([]Turn, error) {
	values, err := h.client.LRange(ctx, h.key(sessionID), 0, -1).Result()
	if errors.Is(err, redis.Nil) {
		return []Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history for session %s: %w", sessionID, err)
	}

	turns := make([]Turn, 0, len(values))
	for _, v := range values {
		var turn Turn
		if err := json.Unmarshal([]byte(v), &turn); err != nil {
			return nil, fmt.Errorf("decode turn for session %s: %w", sessionID, err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (h *RedisHistory) Clear(ctx context.Context, sessionID string) error {
	if err := h.client.Del(ctx, h.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear history for session %s: %w", sessionID, err)
	}
	return nil
}
