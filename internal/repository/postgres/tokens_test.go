package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
	"github.com/jbleroy75/boisson-api/internal/repository"
)

func TestTokenRepository_ReplaceActiveToken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)
	now := time.Now().UTC()
	token := domain.PasswordResetToken{
		ID:        "token-2",
		UserID:    "user-1",
		TokenHash: "hash-2",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE shop\.password_reset_tokens SET used = `).
		WithArgs(true, false, token.UserID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO shop\.password_reset_tokens`).
		WithArgs(token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt, token.Used).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := repo.ReplaceActiveToken(context.Background(), token); err != nil {
		t.Fatalf("ReplaceActiveToken returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_ReplaceActiveTokenRollsBackOnInsertFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)
	now := time.Now().UTC()
	token := domain.PasswordResetToken{
		ID:        "token-2",
		UserID:    "user-1",
		TokenHash: "hash-2",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE shop\.password_reset_tokens SET used = `).
		WithArgs(true, false, token.UserID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO shop\.password_reset_tokens`).
		WithArgs(token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt, token.Used).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := repo.ReplaceActiveToken(context.Background(), token); err == nil {
		t.Fatal("expected insert failure to surface")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_GetActiveByHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "user_id", "token_hash", "created_at", "expires_at", "used"}).
		AddRow("token-1", "user-1", "hash-1", now, now.Add(time.Hour), false)

	mock.ExpectQuery(`SELECT .*FROM shop\.password_reset_tokens`).
		WithArgs("hash-1", false, "user-1").
		WillReturnRows(rows)

	token, err := repo.GetActiveByHash(context.Background(), "user-1", "hash-1")
	if err != nil {
		t.Fatalf("GetActiveByHash returned error: %v", err)
	}
	if token.ID != "token-1" || token.Used {
		t.Fatalf("unexpected token %+v", token)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_GetActiveByHashNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM shop\.password_reset_tokens`).
		WithArgs("hash-x", false, "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "token_hash", "created_at", "expires_at", "used"}))

	if _, err := repo.GetActiveByHash(context.Background(), "user-1", "hash-x"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_Consume(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	mock.ExpectExec(`UPDATE shop\.password_reset_tokens SET used = `).
		WithArgs(true, "token-1", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Consume(context.Background(), "token-1"); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_ConsumeLostRace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	// Zero affected rows means another request flipped the token first.
	mock.ExpectExec(`UPDATE shop\.password_reset_tokens SET used = `).
		WithArgs(true, "token-1", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.Consume(context.Background(), "token-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
