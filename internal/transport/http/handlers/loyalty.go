package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jbleroy75/boisson-api/internal/transport/http/middleware"
	"github.com/jbleroy75/boisson-api/internal/usecase"
)

// LoyaltyHandler exposes the loyalty program endpoints.
type LoyaltyHandler struct {
	loyalty *usecase.LoyaltyService
}

// NewLoyaltyHandler builds a loyalty handler bound to the loyalty service.
func NewLoyaltyHandler(loyalty *usecase.LoyaltyService) *LoyaltyHandler {
	return &LoyaltyHandler{loyalty: loyalty}
}

// RegisterRoutes attaches the loyalty endpoints to the supplied group.
func (h *LoyaltyHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("", h.Profile)
	group.GET("/redemptions", h.Redemptions)
	group.POST("/redeem", h.Redeem)
}

// Profile returns the authenticated member's loyalty standing. Members are
// enrolled on first access, so a fresh account sees a zeroed bronze profile.
func (h *LoyaltyHandler) Profile(c *gin.Context) {
	if h.loyalty == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "loyalty service not configured"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	profile, err := h.loyalty.GetOrCreateMember(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrLoyaltyUnavailable, Status: http.StatusServiceUnavailable, Message: "loyalty program unavailable"},
		}, http.StatusInternalServerError, "failed to load loyalty profile")
		return
	}

	redemptions, err := h.loyalty.ListRedemptions(c.Request.Context(), userID, 0)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrLoyaltyUnavailable, Status: http.StatusServiceUnavailable, Message: "loyalty program unavailable"},
		}, http.StatusInternalServerError, "failed to load loyalty profile")
		return
	}

	c.JSON(http.StatusOK, newLoyaltyProfileResponse(profile, redemptions))
}

// Redemptions lists the member's most recent reward redemptions.
func (h *LoyaltyHandler) Redemptions(c *gin.Context) {
	if h.loyalty == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "loyalty service not configured"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid limit parameter"))
			return
		}
		limit = parsed
	}

	redemptions, err := h.loyalty.ListRedemptions(c.Request.Context(), userID, limit)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrLoyaltyUnavailable, Status: http.StatusServiceUnavailable, Message: "loyalty program unavailable"},
		}, http.StatusInternalServerError, "failed to load redemption history")
		return
	}

	payload := make([]RedemptionPayload, 0, len(redemptions))
	for _, r := range redemptions {
		payload = append(payload, newRedemptionPayload(r))
	}

	c.JSON(http.StatusOK, RedemptionListResponse{
		Redemptions: payload,
		Total:       len(payload),
	})
}

// Redeem spends points against a reward from the catalogue.
func (h *LoyaltyHandler) Redeem(c *gin.Context) {
	if h.loyalty == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "loyalty service not configured"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid authentication"))
		return
	}

	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid redemption payload"))
		return
	}

	result, err := h.loyalty.Redeem(c.Request.Context(), usecase.RedeemInput{
		UserID: userID,
		Points: req.Points,
		Reward: req.Reward,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidRedemption, Status: http.StatusBadRequest, Message: "invalid redemption request"},
			{Err: usecase.ErrInsufficientPoints, Status: http.StatusConflict, Message: "insufficient points"},
			{Err: usecase.ErrLoyaltyUnavailable, Status: http.StatusServiceUnavailable, Message: "loyalty program unavailable"},
		}, http.StatusInternalServerError, "failed to redeem points")
		return
	}

	c.JSON(http.StatusOK, RedeemResponse{
		RedemptionID:    result.RedemptionID,
		Points:          result.Points,
		RemainingPoints: result.Balance,
		Tier:            result.Tier,
		RedeemedAt:      result.RedeemedAt,
	})
}
