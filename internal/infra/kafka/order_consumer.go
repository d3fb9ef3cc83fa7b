package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
	"github.com/jbleroy75/boisson-api/internal/infra/config"
)

// OrderAccruer is the slice of the loyalty service the consumer depends on.
type OrderAccruer interface {
	AccrueOrder(ctx context.Context, event domain.OrderCompletedEvent) (*domain.LoyaltyMember, error)
}

// OrderCompletedConsumer credits loyalty points when checkout publishes a
// completed order. It is the only writer of the spending aggregates.
type OrderCompletedConsumer struct {
	loyalty OrderAccruer
	logger  *zap.Logger
}

// NewOrderCompletedConsumer constructs a consumer that feeds the loyalty engine.
func NewOrderCompletedConsumer(loyalty OrderAccruer, logger *zap.Logger) *OrderCompletedConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderCompletedConsumer{loyalty: loyalty, logger: logger}
}

// HandleMessage decodes a Kafka message prior to processing.
func (c *OrderCompletedConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var event domain.OrderCompletedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("decode order completed event: %w", err)
	}

	return c.HandleEvent(ctx, event)
}

// HandleEvent applies the accrual for a completed order.
func (c *OrderCompletedConsumer) HandleEvent(ctx context.Context, event domain.OrderCompletedEvent) error {
	if c.loyalty == nil {
		return nil
	}

	member, err := c.loyalty.AccrueOrder(ctx, event)
	if err != nil {
		return fmt.Errorf("accrue order %s: %w", event.OrderID, err)
	}

	c.logger.Info("loyalty points accrued",
		zap.String("user_id", event.UserID),
		zap.String("order_id", event.OrderID),
		zap.Int("balance", member.Points),
		zap.String("tier", string(member.Tier())),
	)

	return nil
}

// ConsumerGroup runs the order-completed consumer against a Sarama consumer
// group until the context is cancelled.
type ConsumerGroup struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler *OrderCompletedConsumer
	logger  *zap.Logger
}

// NewConsumerGroup joins the configured consumer group.
func NewConsumerGroup(cfg config.KafkaSettings, handler *OrderCompletedConsumer, logger *zap.Logger) (*ConsumerGroup, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	return &ConsumerGroup{
		group:   group,
		topics:  []string{cfg.OrdersTopic},
		handler: handler,
		logger:  logger,
	}, nil
}

// Run blocks consuming messages until ctx is cancelled.
func (g *ConsumerGroup) Run(ctx context.Context) error {
	go func() {
		for err := range g.group.Errors() {
			g.logger.Error("consumer group error", zap.Error(err))
		}
	}()

	for {
		if err := g.group.Consume(ctx, g.topics, &groupHandler{consumer: g.handler, logger: g.logger}); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consume: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		// Rebalance happened; loop to rejoin.
	}
}

// Close leaves the consumer group.
func (g *ConsumerGroup) Close() error {
	return g.group.Close()
}

type groupHandler struct {
	consumer *OrderCompletedConsumer
	logger   *zap.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.consumer.HandleMessage(session.Context(), msg); err != nil {
			// Malformed or failing messages are logged and skipped; the
			// offset advances so one poison message cannot stall the claim.
			h.logger.Error("handle order message failed",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
		session.MarkMessage(msg, "")
	}
	return nil
}
