package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
	"github.com/jbleroy75/boisson-api/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// TierInfoPayload describes a loyalty tier's static metadata.
type TierInfoPayload struct {
	Name      string   `json:"name"`
	MinPoints int      `json:"min_points"`
	Benefits  []string `json:"benefits"`
}

// MemberPayload describes the authenticated member's loyalty standing.
type MemberPayload struct {
	UserID      string           `json:"user_id"`
	Name        string           `json:"name,omitempty"`
	Points      int              `json:"points"`
	Tier        domain.Tier      `json:"tier"`
	TierInfo    TierInfoPayload  `json:"tier_info"`
	NextTier    *NextTierPayload `json:"next_tier,omitempty"`
	TotalSpent  float64          `json:"total_spent"`
	OrdersCount int              `json:"orders_count"`
	MemberSince time.Time        `json:"member_since"`
}

// LoyaltyProfileResponse wraps the member record together with their most
// recent redemptions.
type LoyaltyProfileResponse struct {
	Member      MemberPayload       `json:"member"`
	Redemptions []RedemptionPayload `json:"redemptions"`
}

// NextTierPayload describes progress toward the next loyalty tier.
type NextTierPayload struct {
	Tier         domain.Tier `json:"tier"`
	PointsNeeded int         `json:"points_needed"`
}

// RedemptionPayload describes a single reward redemption.
type RedemptionPayload struct {
	ID         string    `json:"id"`
	Points     int       `json:"points"`
	Reward     string    `json:"reward"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

// RedemptionListResponse wraps the member's redemption history.
type RedemptionListResponse struct {
	Redemptions []RedemptionPayload `json:"redemptions"`
	Total       int                 `json:"total"`
}

// RedeemRequest captures a reward redemption payload.
type RedeemRequest struct {
	Points int    `json:"points" binding:"required"`
	Reward string `json:"reward" binding:"required"`
}

// RedeemResponse conveys the result of a redemption.
type RedeemResponse struct {
	RedemptionID    string      `json:"redemption_id"`
	Points          int         `json:"points"`
	RemainingPoints int         `json:"remaining_points"`
	Tier            domain.Tier `json:"tier"`
	RedeemedAt      time.Time   `json:"redeemed_at"`
}

// ForgotPasswordRequest represents a password reset initiation payload.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetPasswordRequest captures a password reset confirmation payload.
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required"`
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// newLoyaltyProfileResponse converts a member profile into the API representation.
func newLoyaltyProfileResponse(profile *usecase.MemberProfile, redemptions []domain.Redemption) LoyaltyProfileResponse {
	member := MemberPayload{
		UserID:      profile.Member.UserID,
		Name:        profile.Name,
		Points:      profile.Member.Points,
		Tier:        profile.Tier,
		TierInfo: TierInfoPayload{
			Name:      profile.TierInfo.Name,
			MinPoints: profile.TierInfo.MinPoints,
			Benefits:  profile.TierInfo.Benefits,
		},
		TotalSpent:  profile.Member.TotalSpent,
		OrdersCount: profile.Member.OrdersCount,
		MemberSince: profile.Member.JoinedAt,
	}

	if next, needed, ok := domain.NextTier(profile.Member.Points); ok {
		member.NextTier = &NextTierPayload{Tier: next, PointsNeeded: needed}
	}

	payload := make([]RedemptionPayload, 0, len(redemptions))
	for _, r := range redemptions {
		payload = append(payload, newRedemptionPayload(r))
	}

	return LoyaltyProfileResponse{Member: member, Redemptions: payload}
}

// newRedemptionPayload converts a domain redemption to its API payload.
func newRedemptionPayload(r domain.Redemption) RedemptionPayload {
	return RedemptionPayload{
		ID:         r.ID,
		Points:     r.Points,
		Reward:     r.Reward,
		RedeemedAt: r.RedeemedAt,
	}
}
