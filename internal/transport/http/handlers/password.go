package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jbleroy75/boisson-api/internal/usecase"
)

// resetAcceptedMessage is returned for every well-formed reset request,
// whether or not the address maps to an account.
const resetAcceptedMessage = "If an account exists for this address, a reset link has been sent."

// PasswordHandler exposes the password reset endpoints.
type PasswordHandler struct {
	reset *usecase.PasswordResetService
}

// NewPasswordHandler builds a password handler bound to the reset service.
func NewPasswordHandler(reset *usecase.PasswordResetService) *PasswordHandler {
	return &PasswordHandler{reset: reset}
}

// ForgotPassword initiates a password reset. The response is identical for
// known and unknown addresses so the endpoint cannot be used to probe accounts.
func (h *PasswordHandler) ForgotPassword(c *gin.Context) {
	if h.reset == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password reset not configured"))
		return
	}

	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset request payload"))
		return
	}

	err := h.reset.RequestReset(c.Request.Context(), usecase.ResetRequestInput{
		Email:     req.Email,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		var limited *usecase.RateLimitExceededError
		if errors.As(err, &limited) {
			seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
			if seconds < 0 {
				seconds = 0
			}
			c.Writer.Header().Set("Retry-After", strconv.Itoa(seconds))
			c.JSON(http.StatusTooManyRequests, NewErrorResponse(c, "too many reset requests, try again later"))
			return
		}

		if errors.Is(err, usecase.ErrInvalidEmail) {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid email address"))
			return
		}

		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to process reset request"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: resetAcceptedMessage})
}

// ResetPassword finalizes a reset using the emailed token.
func (h *PasswordHandler) ResetPassword(c *gin.Context) {
	if h.reset == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password reset not configured"))
		return
	}

	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid reset confirmation payload"))
		return
	}

	err := h.reset.ConfirmReset(c.Request.Context(), usecase.ResetConfirmInput{
		Email:       req.Email,
		Token:       req.Token,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidEmail, Status: http.StatusBadRequest, Message: "invalid email address"},
			{Err: usecase.ErrNewPasswordInvalid, Status: http.StatusBadRequest, Message: "new password does not meet requirements"},
			{Err: usecase.ErrTokenExpired, Status: http.StatusGone, Message: "reset link has expired, request a new one"},
			{Err: usecase.ErrTokenNotFound, Status: http.StatusNotFound, Message: "reset link is invalid or already used"},
			{Err: usecase.ErrPasswordResetUnavailable, Status: http.StatusServiceUnavailable, Message: "password reset unavailable"},
		}, http.StatusInternalServerError, "failed to reset password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Password has been reset. You can now sign in."})
}
