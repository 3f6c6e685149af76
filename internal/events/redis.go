package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rpattn/entityindexer/internal/domain"
)

// RedisConfig configures the stream publisher.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// StreamAdder is the subset of the redis client the publisher needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisPublisher appends change events to a redis stream.
type RedisPublisher struct {
	client StreamAdder
	stream string
	maxLen int64
}

// NewRedisClient opens a client for cfg.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

// NewRedisPublisher creates a publisher writing to stream.
func NewRedisPublisher(client StreamAdder, stream string, maxLen int64) *RedisPublisher {
	if stream == "" {
		stream = "entity-changes"
	}
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisPublisher) Publish(ctx context.Context, events []domain.ChangeEvent) error {
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal change event %s: %w", event.ID, err)
		}
		args := &redis.XAddArgs{
			Stream: p.stream,
			Values: map[string]any{
				"id":          event.ID.String(),
				"entity_type": string(event.EntityType),
				"action":      string(event.Action),
				"payload":     string(payload),
			},
		}
		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}
		if err := p.client.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("failed to publish change event %s: %w", event.ID, err)
		}
	}
	return nil
}
