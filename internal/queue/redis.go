package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/image-publisher/internal/publish"
)

// eventListKey is the Redis list downstream consumers pop from.
const eventListKey = "publisher:events"

// RedisEventSink publishes finished reports onto a Redis list.
type RedisEventSink struct {
	client *redis.Client
}

// NewRedisEventSink connects to Redis and verifies the connection.
func NewRedisEventSink(addr, password string, db int) (*RedisEventSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Info().Str("addr", addr).Int("db", db).Msg("Event sink connected")

	return &RedisEventSink{client: client}, nil
}

// Publish pushes the report as a JSON event. Event delivery is best-effort
// relative to the publish itself: a sink failure never changes the report.
func (s *RedisEventSink) Publish(ctx context.Context, report *publish.Report) error {
	event := Event{
		ID:        uuid.New().String(),
		Type:      EventTypePublished,
		Report:    report,
		EmittedAt: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := s.client.RPush(ctx, eventListKey, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Info().
		Str("event_id", event.ID).
		Str("artifact", report.Artifact.String()).
		Bool("success", report.Success).
		Msg("Publish event emitted")

	return nil
}

// Close releases the Redis connection.
func (s *RedisEventSink) Close() error {
	return s.client.Close()
}
