package port

import (
	"context"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishPointsAccrued(ctx context.Context, event domain.PointsAccruedEvent) error
	PublishPointsRedeemed(ctx context.Context, event domain.PointsRedeemedEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
}
