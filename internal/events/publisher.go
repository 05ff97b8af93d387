// Package events publishes engine lifecycle events to a Redis stream for
// the dashboard and reporting consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ranklite/backlink-engine/internal/logger"
)

// StreamName is the Redis stream engine events are appended to.
const StreamName = "backlink:events"

// EventType identifies the engine event.
type EventType string

const (
	EventLinkPlaced          EventType = "link.placed"
	EventTaskCompleted       EventType = "task.completed"
	EventTaskFailed          EventType = "task.failed"
	EventParticipantVerified EventType = "participant.verified"
)

// Event is one engine lifecycle event.
type Event struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType EventType `json:"event_type"`
	UserID    string    `json:"user_id,omitempty"`
	SubjectID string    `json:"subject_id"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// Publisher appends events to the Redis stream. A nil Publisher is a
// no-op, so callers never need to guard for a disabled event bus.
type Publisher struct {
	client *redis.Client
	log    logger.Logger
}

// NewPublisher creates an event publisher. Returns nil if client is nil.
func NewPublisher(client *redis.Client, log logger.Logger) *Publisher {
	if client == nil {
		return nil
	}
	return &Publisher{
		client: client,
		log:    log,
	}
}

// Publish appends one event to the stream.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.client == nil {
		return nil
	}

	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	result := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName,
		Values: map[string]any{
			"event": string(payload),
		},
	})
	if publishErr := result.Err(); publishErr != nil {
		p.log.Error("Failed to publish event",
			logger.String("event_type", string(event.EventType)),
			logger.String("subject_id", event.SubjectID),
			logger.Error(publishErr),
		)
		return fmt.Errorf("publish to stream: %w", publishErr)
	}

	p.log.Debug("Published engine event",
		logger.String("event_type", string(event.EventType)),
		logger.String("subject_id", event.SubjectID),
		logger.String("stream_id", result.Val()),
	)

	return nil
}
