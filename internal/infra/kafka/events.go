package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
	"github.com/jbleroy75/boisson-api/internal/core/port"
	"github.com/jbleroy75/boisson-api/internal/infra/config"
)

const schemaVersion = "1.0"

// Event type names, prefixed with the configured topic prefix at publish time.
const (
	eventPointsAccrued          = "loyalty.points_accrued"
	eventPointsRedeemed         = "loyalty.points_redeemed"
	eventPasswordResetRequested = "account.password_reset_requested"
	eventPasswordChanged        = "account.password_changed"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata: map[string]string{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishPointsAccrued emits loyalty.points_accrued events.
func (p *EventPublisher) PublishPointsAccrued(ctx context.Context, event domain.PointsAccruedEvent) error {
	return p.publish(ctx, event.EventID, eventPointsAccrued, event.UserID, event.AccruedAt, event)
}

// PublishPointsRedeemed emits loyalty.points_redeemed events.
func (p *EventPublisher) PublishPointsRedeemed(ctx context.Context, event domain.PointsRedeemedEvent) error {
	return p.publish(ctx, event.EventID, eventPointsRedeemed, event.UserID, event.RedeemedAt, event)
}

// PublishPasswordResetRequested emits account.password_reset_requested events.
func (p *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error {
	return p.publish(ctx, event.EventID, eventPasswordResetRequested, event.UserID, event.RequestedAt, event)
}

// PublishPasswordChanged emits account.password_changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	return p.publish(ctx, event.EventID, eventPasswordChanged, event.UserID, event.ChangedAt, event)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
