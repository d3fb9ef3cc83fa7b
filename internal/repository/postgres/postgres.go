package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgPool extends pgExecutor with transaction support. Both *pgxpool.Pool and
// the pgxmock pool satisfy it.
type pgPool interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// Repositories groups the concrete PostgreSQL repository implementations.
type Repositories struct {
	Users   *UserRepository
	Loyalty *LoyaltyRepository
	Tokens  *TokenRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool pgPool) *Repositories {
	return &Repositories{
		Users:   NewUserRepository(pool),
		Loyalty: NewLoyaltyRepository(pool),
		Tokens:  NewTokenRepository(pool),
	}
}
