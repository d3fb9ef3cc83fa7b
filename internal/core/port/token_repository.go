package port

import (
	"context"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
)

// TokenRepository manages password reset token records.
type TokenRepository interface {
	// ReplaceActiveToken marks every unused token for the user as used and
	// inserts the new record in a single transaction, so at most one active
	// token exists per user at any time.
	ReplaceActiveToken(ctx context.Context, token domain.PasswordResetToken) error
	// GetActiveByHash returns the latest unused token matching the hash.
	GetActiveByHash(ctx context.Context, userID, tokenHash string) (*domain.PasswordResetToken, error)
	// Consume flips the token from unused to used. The transition is
	// conditional on the row still being unused; a lost race surfaces as
	// repository.ErrNotFound so concurrent redemptions cannot both succeed.
	Consume(ctx context.Context, tokenID string) error
}
