package domain

import "time"

// PasswordResetToken represents a single-use password reset token. Only the
// SHA-256 hash of the secret is persisted; the raw token lives exclusively in
// the reset link sent to the user. Rows are never deleted, only flipped to
// used, so the table doubles as an audit trail.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

// IsExpired reports whether the token has elapsed its validity window.
func (t PasswordResetToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// IsActive returns true when the token can still be redeemed.
func (t PasswordResetToken) IsActive(at time.Time) bool {
	return !t.Used && !t.IsExpired(at)
}
