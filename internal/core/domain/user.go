package domain

import "time"

// User mirrors the persisted representation in the users table. Account
// creation and session issuance live in the external auth service; this
// service only looks users up by email and updates the password hash after a
// completed reset.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	PasswordAlgo string
	CreatedAt    time.Time
}
