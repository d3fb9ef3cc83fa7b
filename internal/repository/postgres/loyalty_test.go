package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
	"github.com/jbleroy75/boisson-api/internal/repository"
)

func TestLoyaltyRepository_GetMember(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLoyaltyRepository(mock)
	joined := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"user_id", "points", "total_spent", "orders_count", "joined_at"}).
		AddRow("user-1", 1700, 312.40, 9, joined)

	mock.ExpectQuery(`SELECT .*FROM shop\.loyalty_members`).WithArgs("user-1").WillReturnRows(rows)

	member, err := repo.GetMember(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetMember returned error: %v", err)
	}
	if member.Points != 1700 {
		t.Fatalf("points = %d, want 1700", member.Points)
	}
	if member.Tier() != domain.TierGold {
		t.Fatalf("derived tier = %s, want gold", member.Tier())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoyaltyRepository_GetMemberNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLoyaltyRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM shop\.loyalty_members`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "points", "total_spent", "orders_count", "joined_at"}))

	if _, err := repo.GetMember(context.Background(), "ghost"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoyaltyRepository_CreateMemberConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLoyaltyRepository(mock)
	member := domain.LoyaltyMember{UserID: "user-1", JoinedAt: time.Now().UTC()}

	mock.ExpectExec(`INSERT INTO shop\.loyalty_members`).
		WithArgs(member.UserID, member.Points, member.TotalSpent, member.OrdersCount, member.JoinedAt).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})

	if err := repo.CreateMember(context.Background(), member); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoyaltyRepository_SpendPointsInsufficient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLoyaltyRepository(mock)
	redemption := domain.Redemption{
		ID:         "red-1",
		UserID:     "user-1",
		Points:     900,
		Reward:     "crate",
		RedeemedAt: time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE shop\.loyalty_members SET points = points - .* RETURNING`).
		WithArgs(redemption.Points, redemption.UserID, redemption.Points).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "points", "total_spent", "orders_count", "joined_at"}))
	mock.ExpectRollback()

	if _, err := repo.SpendPoints(context.Background(), redemption); !errors.Is(err, repository.ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoyaltyRepository_SpendPointsCommits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLoyaltyRepository(mock)
	joined := time.Now().UTC()
	redemption := domain.Redemption{
		ID:         "red-1",
		UserID:     "user-1",
		Points:     200,
		Reward:     "free-delivery",
		RedeemedAt: joined,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE shop\.loyalty_members SET points = points - .* RETURNING`).
		WithArgs(redemption.Points, redemption.UserID, redemption.Points).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "points", "total_spent", "orders_count", "joined_at"}).
			AddRow("user-1", 400, 120.0, 4, joined))
	mock.ExpectExec(`INSERT INTO shop\.loyalty_redemptions`).
		WithArgs(redemption.ID, redemption.UserID, redemption.Points, redemption.Reward, redemption.RedeemedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	member, err := repo.SpendPoints(context.Background(), redemption)
	if err != nil {
		t.Fatalf("SpendPoints returned error: %v", err)
	}
	if member.Points != 400 {
		t.Fatalf("balance = %d, want 400", member.Points)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoyaltyRepository_AccrueOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLoyaltyRepository(mock)
	joined := time.Now().UTC()

	mock.ExpectQuery(`UPDATE shop\.loyalty_members SET points = points \+ .* RETURNING`).
		WithArgs(42, 42.90, "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "points", "total_spent", "orders_count", "joined_at"}).
			AddRow("user-1", 542, 542.90, 13, joined))

	member, err := repo.AccrueOrder(context.Background(), "user-1", 42, 42.90)
	if err != nil {
		t.Fatalf("AccrueOrder returned error: %v", err)
	}
	if member.Points != 542 {
		t.Fatalf("balance = %d, want 542", member.Points)
	}
	if member.Tier() != domain.TierSilver {
		t.Fatalf("derived tier = %s, want silver", member.Tier())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLoyaltyRepository_ListRedemptions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewLoyaltyRepository(mock)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "user_id", "points", "reward", "redeemed_at"}).
		AddRow("red-2", "user-1", 100, "tote-bag", now).
		AddRow("red-1", "user-1", 250, "tasting-box", now.Add(-time.Hour))

	mock.ExpectQuery(`SELECT .*FROM shop\.loyalty_redemptions .*ORDER BY redeemed_at DESC`).
		WithArgs("user-1").
		WillReturnRows(rows)

	redemptions, err := repo.ListRedemptions(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("ListRedemptions returned error: %v", err)
	}
	if len(redemptions) != 2 {
		t.Fatalf("expected 2 redemptions, got %d", len(redemptions))
	}
	if redemptions[0].ID != "red-2" {
		t.Fatalf("expected newest first, got %s", redemptions[0].ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
