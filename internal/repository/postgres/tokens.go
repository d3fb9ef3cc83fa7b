package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
	"github.com/jbleroy75/boisson-api/internal/core/port"
	"github.com/jbleroy75/boisson-api/internal/repository"
)

const tokensTable = "shop.password_reset_tokens"

// TokenRepository implements port.TokenRepository using PostgreSQL.
type TokenRepository struct {
	pool    pgPool
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a new token repository.
func NewTokenRepository(pool pgPool) *TokenRepository {
	return &TokenRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ReplaceActiveToken marks every unused token for the user as used and inserts
// the new record. Running both statements in one transaction keeps the
// at-most-one-active-token invariant under concurrent issuance.
func (r *TokenRepository) ReplaceActiveToken(ctx context.Context, token domain.PasswordResetToken) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace token tx: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt, args, err := r.builder.
		Update(tokensTable).
		Set("used", true).
		Where(squirrel.Eq{"user_id": token.UserID, "used": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build invalidate tokens sql: %w", err)
	}

	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("invalidate reset tokens: %w", err)
	}

	stmt, args, err = r.builder.
		Insert(tokensTable).
		Columns("id", "user_id", "token_hash", "created_at", "expires_at", "used").
		Values(token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt, token.Used).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert token sql: %w", err)
	}

	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace token tx: %w", err)
	}

	return nil
}

// GetActiveByHash returns the latest unused token for the user matching the hash.
func (r *TokenRepository) GetActiveByHash(ctx context.Context, userID, tokenHash string) (*domain.PasswordResetToken, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "token_hash", "created_at", "expires_at", "used").
		From(tokensTable).
		Where(squirrel.Eq{"user_id": userID, "token_hash": tokenHash, "used": false}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select token sql: %w", err)
	}

	var token domain.PasswordResetToken
	if err := r.pool.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.Used,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan reset token: %w", err)
	}

	return &token, nil
}

// Consume flips the token from unused to used. The WHERE used = false guard
// makes the transition atomic: of two concurrent redemptions, exactly one
// observes an affected row.
func (r *TokenRepository) Consume(ctx context.Context, tokenID string) error {
	stmt, args, err := r.builder.
		Update(tokensTable).
		Set("used", true).
		Where(squirrel.Eq{"id": tokenID, "used": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume token sql: %w", err)
	}

	tag, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
