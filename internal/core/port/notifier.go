package port

import "context"

// PasswordResetEmail carries the content of a reset link delivery. ResetToken
// is the raw secret; only its digest ever reaches storage.
type PasswordResetEmail struct {
	Email      string
	Name       string
	ResetToken string
	ResetURL   string
}

// Notifier delivers transactional email. Delivery failures are logged by the
// caller and never surfaced to the end user.
type Notifier interface {
	SendPasswordResetEmail(ctx context.Context, msg PasswordResetEmail) error
}
