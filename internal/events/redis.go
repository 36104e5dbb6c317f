package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel lifecycle events are published on.
const DefaultRedisChannel = "bterminal:sessions"

// RedisSink publishes lifecycle events to a Redis pub/sub channel.
type RedisSink struct {
	rdb     *redis.Client
	channel string
}

// NewRedisSink connects to redisURL and verifies the connection.
func NewRedisSink(redisURL, channel string) (*RedisSink, error) {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisSink{rdb: rdb, channel: channel}, nil
}

// Name implements Sink.
func (s *RedisSink) Name() string {
	return "redis:" + s.channel
}

// Publish implements Sink.
func (s *RedisSink) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}
