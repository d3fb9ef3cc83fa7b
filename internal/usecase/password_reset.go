package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
	"github.com/jbleroy75/boisson-api/internal/core/port"
	"github.com/jbleroy75/boisson-api/internal/infra/logger"
	"github.com/jbleroy75/boisson-api/internal/infra/security"
	"github.com/jbleroy75/boisson-api/internal/repository"
)

const (
	defaultResetTTL = time.Hour
	// resetTokenBytes yields 256 bits of entropy per token.
	resetTokenBytes = 32

	passwordResetRateLimitScope = "password_reset"
)

var (
	// ErrPasswordResetUnavailable indicates the service is not properly configured.
	ErrPasswordResetUnavailable = errors.New("password reset service unavailable")
	// ErrInvalidEmail indicates the supplied address fails syntactic validation.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrTokenNotFound indicates no matching unused token exists for the user.
	ErrTokenNotFound = errors.New("password reset token not found")
	// ErrTokenExpired indicates the token elapsed its validity window.
	ErrTokenExpired = errors.New("password reset token expired")
	// ErrNewPasswordInvalid indicates the replacement password fails policy.
	ErrNewPasswordInvalid = errors.New("new password invalid")
)

// RateLimitExceededError signals a caller went over the issuance window.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

// Error implements error.
func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}

// PasswordResetService coordinates reset token issuance and redemption.
type PasswordResetService struct {
	users             port.UserRepository
	tokens            port.TokenRepository
	notifier          port.Notifier
	rateLimits        port.RateLimitStore
	events            port.EventPublisher
	passwordValidator *security.PasswordValidator
	logger            *zap.Logger
	now               func() time.Time
	resetTTL          time.Duration
	resetBaseURL      string
	maxAttempts       int
	window            time.Duration
}

// ResetRequestInput encapsulates metadata for a password reset request.
type ResetRequestInput struct {
	Email     string
	IP        string
	UserAgent string
}

// ResetConfirmInput carries the payload to finalize a password reset.
type ResetConfirmInput struct {
	Email       string
	Token       string
	NewPassword string
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(users port.UserRepository, tokens port.TokenRepository, notifier port.Notifier, validator *security.PasswordValidator, log *zap.Logger) *PasswordResetService {
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &PasswordResetService{
		users:             users,
		tokens:            tokens,
		notifier:          notifier,
		passwordValidator: validator,
		logger:            log,
		now:               time.Now,
		resetTTL:          defaultResetTTL,
	}
}

// WithEventPublisher injects the event bus after construction.
func (s *PasswordResetService) WithEventPublisher(events port.EventPublisher) *PasswordResetService {
	s.events = events
	return s
}

// WithRateLimit enables sliding-window throttling of issuance per email.
func (s *PasswordResetService) WithRateLimit(store port.RateLimitStore, maxAttempts int, window time.Duration) *PasswordResetService {
	s.rateLimits = store
	s.maxAttempts = maxAttempts
	s.window = window
	return s
}

// WithResetBaseURL sets the storefront page embedded in reset links.
func (s *PasswordResetService) WithResetBaseURL(base string) *PasswordResetService {
	s.resetBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	return s
}

// WithClock allows tests to override the clock used by the service.
func (s *PasswordResetService) WithClock(clock func() time.Time) *PasswordResetService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithTTL allows tests to override the default token TTL.
func (s *PasswordResetService) WithTTL(ttl time.Duration) *PasswordResetService {
	if ttl > 0 {
		s.resetTTL = ttl
	}
	return s
}

// RequestReset issues a reset token for the address if an account exists.
// Whatever happens past syntactic validation, the caller observes the same
// success outcome: an unknown address performs no writes, and persistence or
// delivery failures are logged and swallowed. Only malformed input and rate
// limiting are surfaced.
func (s *PasswordResetService) RequestReset(ctx context.Context, input ResetRequestInput) error {
	if s.users == nil || s.tokens == nil {
		return ErrPasswordResetUnavailable
	}

	email, err := normalizeEmail(input.Email)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if err := s.enforceRateLimit(ctx, email, now); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("password reset user lookup failed", zap.String("email", logger.MaskEmail(email)), zap.Error(err))
		}
		return nil
	}

	raw, err := security.GenerateSecureToken(resetTokenBytes)
	if err != nil {
		s.logger.Error("generate reset token failed", zap.Error(err))
		return nil
	}

	token := domain.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashToken(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(s.resetTTL),
	}

	if err := s.tokens.ReplaceActiveToken(ctx, token); err != nil {
		s.logger.Error("store reset token failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil
	}

	resetURL := s.buildResetURL(raw, email)

	if s.notifier != nil {
		msg := port.PasswordResetEmail{
			Email:      email,
			Name:       user.Name,
			ResetToken: raw,
			ResetURL:   resetURL,
		}
		if err := s.notifier.SendPasswordResetEmail(ctx, msg); err != nil {
			s.logger.Error("send reset email failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	s.publishResetRequested(ctx, user.ID, email, token.ExpiresAt, input.IP)

	return nil
}

// ConfirmReset redeems a token and applies the new password. The unused-to-used
// transition is a single conditional write, so two concurrent confirmations
// with the same token cannot both succeed.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, input ResetConfirmInput) error {
	if s.users == nil || s.tokens == nil {
		return ErrPasswordResetUnavailable
	}

	email, err := normalizeEmail(input.Email)
	if err != nil {
		return err
	}

	rawToken := strings.TrimSpace(input.Token)
	if rawToken == "" {
		return ErrTokenNotFound
	}

	if err := s.passwordValidator.Validate(input.NewPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrNewPasswordInvalid, err)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	token, err := s.tokens.GetActiveByHash(ctx, user.ID, security.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}

	now := s.now().UTC()
	if token.IsExpired(now) {
		// Burn the expired token so it cannot be retried.
		if err := s.tokens.Consume(ctx, token.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("consume expired reset token failed", zap.String("token_id", token.ID), zap.Error(err))
		}
		return ErrTokenExpired
	}

	if err := s.tokens.Consume(ctx, token.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	hashed, err := security.HashPassword(input.NewPassword)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hashed, security.PasswordAlgo, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.publishPasswordChanged(ctx, user.ID, token.ID, now)

	return nil
}

func (s *PasswordResetService) enforceRateLimit(ctx context.Context, email string, now time.Time) error {
	if s.rateLimits == nil || s.maxAttempts <= 0 {
		return nil
	}

	window := s.window
	if window <= 0 {
		window = time.Hour
	}

	storageKey := fmt.Sprintf("%s:%s", passwordResetRateLimitScope, email)

	if err := s.rateLimits.TrimWindow(ctx, storageKey, window, now); err != nil {
		s.logger.Warn("password reset rate limit trim failed", zap.Error(err))
		return nil
	}

	count, err := s.rateLimits.CountAttempts(ctx, storageKey, window, now)
	if err != nil {
		s.logger.Warn("password reset rate limit count failed", zap.Error(err))
		return nil
	}

	if count >= s.maxAttempts {
		retryAfter := time.Duration(0)
		if oldest, ok, err := s.rateLimits.OldestAttempt(ctx, storageKey, window, now); err == nil && ok {
			if reset := oldest.Add(window); reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if err != nil {
			s.logger.Warn("password reset rate limit oldest lookup failed", zap.Error(err))
		}
		return &RateLimitExceededError{Scope: passwordResetRateLimitScope, RetryAfter: retryAfter}
	}

	if err := s.rateLimits.RecordAttempt(ctx, storageKey, now); err != nil {
		s.logger.Warn("password reset rate limit record failed", zap.Error(err))
	}

	return nil
}

func (s *PasswordResetService) buildResetURL(rawToken, email string) string {
	base := s.resetBaseURL
	if base == "" {
		base = "/reset-password"
	}

	params := url.Values{}
	params.Set("token", rawToken)
	params.Set("email", email)

	return fmt.Sprintf("%s?%s", base, params.Encode())
}

func (s *PasswordResetService) publishResetRequested(ctx context.Context, userID, email string, expiresAt time.Time, ip string) {
	if s.events == nil {
		return
	}

	event := domain.PasswordResetRequestedEvent{
		EventID:     uuid.NewString(),
		UserID:      userID,
		RequestID:   uuid.NewString(),
		MaskedEmail: logger.MaskEmail(email),
		RequestedAt: s.now().UTC(),
		ExpiresAt:   expiresAt,
	}
	if trimmed := strings.TrimSpace(ip); trimmed != "" {
		event.IP = &trimmed
	}

	if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
		s.logger.Warn("publish password reset requested failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *PasswordResetService) publishPasswordChanged(ctx context.Context, userID, tokenID string, changedAt time.Time) {
	if s.events == nil {
		return
	}

	event := domain.PasswordChangedEvent{
		EventID:   uuid.NewString(),
		UserID:    userID,
		ChangedAt: changedAt,
		TokenID:   tokenID,
	}

	if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
		s.logger.Warn("publish password changed failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func normalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", ErrInvalidEmail
	}
	if addr, err := mail.ParseAddress(normalized); err != nil || addr.Address != normalized {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}
