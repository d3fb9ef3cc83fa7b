package port

import (
	"context"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
)

// LoyaltyRepository exposes persistence behavior for loyalty members and
// their redemption history.
type LoyaltyRepository interface {
	GetMember(ctx context.Context, userID string) (*domain.LoyaltyMember, error)
	// CreateMember inserts a zeroed member row. Returns repository.ErrConflict
	// when another request won the create race for the same user.
	CreateMember(ctx context.Context, member domain.LoyaltyMember) error
	// AccrueOrder atomically credits points and folds the order total into the
	// spending aggregates.
	AccrueOrder(ctx context.Context, userID string, points int, orderTotal float64) (*domain.LoyaltyMember, error)
	// SpendPoints conditionally deducts points and records the redemption.
	// Returns repository.ErrInsufficientPoints when the balance is too low.
	SpendPoints(ctx context.Context, redemption domain.Redemption) (*domain.LoyaltyMember, error)
	ListRedemptions(ctx context.Context, userID string, limit int) ([]domain.Redemption, error)
}
