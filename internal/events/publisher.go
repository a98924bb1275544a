// Package events delivers committed hiring changes to other subsystems.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/sumire/hiring/internal/domain"
)

// DefaultPrefix is prepended to every channel name.
const DefaultPrefix = "hiring"

// Client is the part of a redis client used for publishing.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher publishes events as JSON on redis pub/sub channels named
// "<prefix>.<event type>".
type RedisPublisher struct {
	client Client
	prefix string
}

// NewRedisPublisher creates a RedisPublisher.
func NewRedisPublisher(client Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel returns the channel an event type is published on.
func (p *RedisPublisher) Channel(t domain.EventType) string {
	return p.prefix + "." + string(t)
}

// Publish sends one event.
func (p *RedisPublisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	if err := p.client.Publish(ctx, p.Channel(event.Type), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", p.Channel(event.Type), err)
	}
	return nil
}

// NewRedisClient creates and verifies a redis client connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// LogPublisher writes events to the structured log. It is used when no
// broker is configured.
type LogPublisher struct{}

// Publish logs one event.
func (LogPublisher) Publish(_ context.Context, event domain.Event) error {
	slog.Info("event",
		"type", event.Type,
		"job_id", event.JobID,
		"application_id", event.ApplicationID,
		"old_status", event.OldStatus,
		"new_status", event.NewStatus,
		"stage_key", event.StageKey,
		"actor", event.Actor,
	)
	return nil
}
