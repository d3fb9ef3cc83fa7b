package domain

import (
	"testing"
	"time"
)

func TestPasswordResetTokenLifecycle(t *testing.T) {
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	token := PasswordResetToken{
		ID:        "token-1",
		UserID:    "user-1",
		CreatedAt: issued,
		ExpiresAt: issued.Add(time.Hour),
	}

	if token.IsExpired(issued) {
		t.Fatal("token should not be expired at issuance")
	}
	if !token.IsActive(issued.Add(59 * time.Minute)) {
		t.Fatal("token should be active inside the validity window")
	}

	// Expiry boundary is exclusive: the token dies exactly at ExpiresAt.
	if !token.IsExpired(issued.Add(time.Hour)) {
		t.Fatal("token should be expired at the deadline")
	}

	token.Used = true
	if token.IsActive(issued) {
		t.Fatal("used token must never be active")
	}
}
