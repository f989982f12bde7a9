package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// NarrativeEvent is the fire-and-forget record emitted at the analytics
// boundary when a player crosses a narrative milestone. The analytics
// subsystem itself lives outside this service.
type NarrativeEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	PlayerID  string    `json:"player_id"`
	ChapterID string    `json:"chapter_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event types.
const (
	EventChapterStarted   = "chapter_started"
	EventChapterCompleted = "chapter_completed"
	EventChallengeFailed  = "challenge_failed"
	EventChoiceMade       = "choice_made"
)

// EventPublisher publishes narrative events. Implementations must not block
// gameplay on delivery problems; a lost event is logged and forgotten.
type EventPublisher interface {
	PublishNarrativeEvent(ctx context.Context, event NarrativeEvent) error
}

// NewNarrativeEvent fills in the event envelope.
func NewNarrativeEvent(eventType, playerID, chapterID string) NarrativeEvent {
	return NarrativeEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		PlayerID:  playerID,
		ChapterID: chapterID,
		Timestamp: time.Now().UTC(),
	}
}

// rabbitMQPublisher implements EventPublisher over a RabbitMQ queue.
type rabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

var _ EventPublisher = (*rabbitMQPublisher)(nil)

// NewRabbitMQPublisher opens a channel on conn and declares the event queue.
// Declaring on the publisher side keeps startup order between this service
// and the analytics consumer irrelevant.
func NewRabbitMQPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (EventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("event publisher: open channel: %w", err)
	}
	_, err = ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("event publisher: declare queue %s: %w", queueName, err)
	}
	return &rabbitMQPublisher{channel: ch, queueName: queueName, logger: logger.Named("EventPublisher")}, nil
}

func (p *rabbitMQPublisher) PublishNarrativeEvent(ctx context.Context, event NarrativeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal narrative event: %w", err)
	}
	err = p.channel.PublishWithContext(ctx, "", p.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Timestamp,
		Body:         body,
	})
	if err != nil {
		p.logger.Warn("Failed to publish narrative event",
			zap.String("type", event.Type),
			zap.String("playerID", event.PlayerID),
			zap.Error(err))
		return err
	}
	return nil
}

// NopPublisher discards events; used when no broker is configured.
type NopPublisher struct{}

var _ EventPublisher = NopPublisher{}

func (NopPublisher) PublishNarrativeEvent(ctx context.Context, event NarrativeEvent) error {
	return nil
}
