package port

import (
	"context"
	"time"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
)

// UserRepository exposes the slice of user persistence this service needs.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string, passwordAlgo string, changedAt time.Time) error
}
