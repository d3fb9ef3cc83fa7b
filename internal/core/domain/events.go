package domain

import "time"

// OrderCompletedEvent is emitted by the checkout service when an order is
// paid. The loyalty accrual consumer treats it as the sole source of point
// increases.
type OrderCompletedEvent struct {
	EventID     string    `json:"event_id"`
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	Total       float64   `json:"total"`
	Currency    string    `json:"currency"`
	CompletedAt time.Time `json:"completed_at"`
}

// PointsAccruedEvent records a point credit applied to a member.
type PointsAccruedEvent struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	OrderID   string    `json:"order_id,omitempty"`
	Points    int       `json:"points"`
	Balance   int       `json:"balance"`
	Tier      Tier      `json:"tier"`
	AccruedAt time.Time `json:"accrued_at"`
}

// PointsRedeemedEvent records a member spending points on a reward.
type PointsRedeemedEvent struct {
	EventID      string    `json:"event_id"`
	UserID       string    `json:"user_id"`
	RedemptionID string    `json:"redemption_id"`
	Points       int       `json:"points"`
	Balance      int       `json:"balance"`
	Reward       string    `json:"reward"`
	RedeemedAt   time.Time `json:"redeemed_at"`
}

// PasswordResetRequestedEvent is published when a reset token has been issued
// so downstream systems can audit recovery activity.
type PasswordResetRequestedEvent struct {
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	RequestID   string    `json:"request_id"`
	MaskedEmail string    `json:"masked_email"`
	RequestedAt time.Time `json:"requested_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	IP          *string   `json:"ip,omitempty"`
}

// PasswordChangedEvent is published after a reset token was consumed and the
// new password persisted.
type PasswordChangedEvent struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	ChangedAt time.Time `json:"changed_at"`
	TokenID   string    `json:"token_id,omitempty"`
}
