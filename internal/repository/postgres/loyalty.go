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

const (
	membersTable     = "shop.loyalty_members"
	redemptionsTable = "shop.loyalty_redemptions"
)

var memberColumns = []string{"user_id", "points", "total_spent", "orders_count", "joined_at"}

// LoyaltyRepository implements port.LoyaltyRepository using PostgreSQL.
type LoyaltyRepository struct {
	pool    pgPool
	builder squirrel.StatementBuilderType
}

// NewLoyaltyRepository wires a PostgreSQL-backed loyalty repository.
func NewLoyaltyRepository(pool pgPool) *LoyaltyRepository {
	return &LoyaltyRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetMember retrieves a loyalty member by owning user.
func (r *LoyaltyRepository) GetMember(ctx context.Context, userID string) (*domain.LoyaltyMember, error) {
	stmt, args, err := r.builder.
		Select(memberColumns...).
		From(membersTable).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select member sql: %w", err)
	}

	return scanMember(r.pool.QueryRow(ctx, stmt, args...))
}

// CreateMember inserts a zeroed member row. A lost uniqueness race surfaces as
// repository.ErrConflict so the caller can re-fetch the winning row.
func (r *LoyaltyRepository) CreateMember(ctx context.Context, member domain.LoyaltyMember) error {
	stmt, args, err := r.builder.
		Insert(membersTable).
		Columns(memberColumns...).
		Values(member.UserID, member.Points, member.TotalSpent, member.OrdersCount, member.JoinedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert member sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert loyalty member: %w", err)
	}

	return nil
}

// AccrueOrder credits points and folds the order total into the spending
// aggregates in a single statement.
func (r *LoyaltyRepository) AccrueOrder(ctx context.Context, userID string, points int, orderTotal float64) (*domain.LoyaltyMember, error) {
	stmt, args, err := r.builder.
		Update(membersTable).
		Set("points", squirrel.Expr("points + ?", points)).
		Set("total_spent", squirrel.Expr("total_spent + ?", orderTotal)).
		Set("orders_count", squirrel.Expr("orders_count + 1")).
		Where(squirrel.Eq{"user_id": userID}).
		Suffix("RETURNING user_id, points, total_spent, orders_count, joined_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build accrue order sql: %w", err)
	}

	return scanMember(r.pool.QueryRow(ctx, stmt, args...))
}

// SpendPoints conditionally deducts points and records the redemption inside a
// transaction. The deduction predicate (points >= spent) is what prevents two
// concurrent redemptions from overdrawing the balance.
func (r *LoyaltyRepository) SpendPoints(ctx context.Context, redemption domain.Redemption) (*domain.LoyaltyMember, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin spend points tx: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt, args, err := r.builder.
		Update(membersTable).
		Set("points", squirrel.Expr("points - ?", redemption.Points)).
		Where(squirrel.Eq{"user_id": redemption.UserID}).
		Where(squirrel.GtOrEq{"points": redemption.Points}).
		Suffix("RETURNING user_id, points, total_spent, orders_count, joined_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build spend points sql: %w", err)
	}

	member, err := scanMember(tx.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrInsufficientPoints
		}
		return nil, err
	}

	stmt, args, err = r.builder.
		Insert(redemptionsTable).
		Columns("id", "user_id", "points", "reward", "redeemed_at").
		Values(redemption.ID, redemption.UserID, redemption.Points, redemption.Reward, redemption.RedeemedAt).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert redemption sql: %w", err)
	}

	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit spend points tx: %w", err)
	}

	return member, nil
}

// ListRedemptions returns the most recent redemptions for a user, newest first.
func (r *LoyaltyRepository) ListRedemptions(ctx context.Context, userID string, limit int) ([]domain.Redemption, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "points", "reward", "redeemed_at").
		From(redemptionsTable).
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("redeemed_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select redemptions sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query redemptions: %w", err)
	}
	defer rows.Close()

	redemptions := make([]domain.Redemption, 0, limit)
	for rows.Next() {
		var red domain.Redemption
		if err := rows.Scan(&red.ID, &red.UserID, &red.Points, &red.Reward, &red.RedeemedAt); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, red)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate redemptions: %w", err)
	}

	return redemptions, nil
}

func scanMember(row pgx.Row) (*domain.LoyaltyMember, error) {
	var member domain.LoyaltyMember
	if err := row.Scan(
		&member.UserID,
		&member.Points,
		&member.TotalSpent,
		&member.OrdersCount,
		&member.JoinedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan loyalty member: %w", err)
	}
	return &member, nil
}

var _ port.LoyaltyRepository = (*LoyaltyRepository)(nil)
