package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
	"github.com/jbleroy75/boisson-api/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishPointsAccrued logs loyalty.points_accrued events.
func (p *StubPublisher) PublishPointsAccrued(_ context.Context, event domain.PointsAccruedEvent) error {
	p.logEvent(eventPointsAccrued, event.UserID, event.AccruedAt, event)
	return nil
}

// PublishPointsRedeemed logs loyalty.points_redeemed events.
func (p *StubPublisher) PublishPointsRedeemed(_ context.Context, event domain.PointsRedeemedEvent) error {
	p.logEvent(eventPointsRedeemed, event.UserID, event.RedeemedAt, event)
	return nil
}

// PublishPasswordResetRequested logs account.password_reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.logEvent(eventPasswordResetRequested, event.UserID, event.RequestedAt, event)
	return nil
}

// PublishPasswordChanged logs account.password_changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent(eventPasswordChanged, event.UserID, event.ChangedAt, event)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
