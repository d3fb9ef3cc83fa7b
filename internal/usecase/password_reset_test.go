package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/jbleroy75/boisson-api/internal/core/domain"
	"github.com/jbleroy75/boisson-api/internal/core/port"
	"github.com/jbleroy75/boisson-api/internal/infra/security"
	"github.com/jbleroy75/boisson-api/internal/repository"
)

type resetUserRepoMock struct {
	byEmail     map[string]domain.User
	updatedID   string
	updatedHash string
	updatedAlgo string
	updatedAt   time.Time
}

func (m *resetUserRepoMock) GetByID(context.Context, string) (*domain.User, error) {
	return nil, errors.New("unexpected call: GetByID")
}

func (m *resetUserRepoMock) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if user, ok := m.byEmail[email]; ok {
		copy := user
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (m *resetUserRepoMock) UpdatePassword(_ context.Context, id, hash, algo string, changedAt time.Time) error {
	m.updatedID = id
	m.updatedHash = hash
	m.updatedAlgo = algo
	m.updatedAt = changedAt
	return nil
}

type resetTokenRepoMock struct {
	active     *domain.PasswordResetToken
	replaced   int
	consumed   []string
	replaceErr error
	consumeErr error
}

func (m *resetTokenRepoMock) ReplaceActiveToken(_ context.Context, token domain.PasswordResetToken) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.replaced++
	copy := token
	m.active = &copy
	return nil
}

func (m *resetTokenRepoMock) GetActiveByHash(_ context.Context, userID, tokenHash string) (*domain.PasswordResetToken, error) {
	if m.active == nil || m.active.Used {
		return nil, repository.ErrNotFound
	}
	if m.active.UserID != userID || m.active.TokenHash != tokenHash {
		return nil, repository.ErrNotFound
	}
	copy := *m.active
	return &copy, nil
}

func (m *resetTokenRepoMock) Consume(_ context.Context, tokenID string) error {
	if m.consumeErr != nil {
		return m.consumeErr
	}
	if m.active == nil || m.active.ID != tokenID || m.active.Used {
		return repository.ErrNotFound
	}
	m.active.Used = true
	m.consumed = append(m.consumed, tokenID)
	return nil
}

type notifierMock struct {
	sent    []port.PasswordResetEmail
	sendErr error
}

func (m *notifierMock) SendPasswordResetEmail(_ context.Context, msg port.PasswordResetEmail) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

type rateLimitStoreMock struct {
	attempts map[string][]time.Time
}

func newRateLimitStoreMock() *rateLimitStoreMock {
	return &rateLimitStoreMock{attempts: map[string][]time.Time{}}
}

func (m *rateLimitStoreMock) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	kept := m.attempts[identifier][:0]
	for _, at := range m.attempts[identifier] {
		if at.After(reference.Add(-window)) {
			kept = append(kept, at)
		}
	}
	m.attempts[identifier] = kept
	return nil
}

func (m *rateLimitStoreMock) CountAttempts(_ context.Context, identifier string, _ time.Duration, _ time.Time) (int, error) {
	return len(m.attempts[identifier]), nil
}

func (m *rateLimitStoreMock) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	m.attempts[identifier] = append(m.attempts[identifier], at)
	return nil
}

func (m *rateLimitStoreMock) OldestAttempt(_ context.Context, identifier string, _ time.Duration, _ time.Time) (time.Time, bool, error) {
	if len(m.attempts[identifier]) == 0 {
		return time.Time{}, false, nil
	}
	return m.attempts[identifier][0], true, nil
}

const strongPassword = "Citron-Presse-2024!"

func newResetFixture(t *testing.T) (*PasswordResetService, *resetUserRepoMock, *resetTokenRepoMock, *notifierMock, time.Time) {
	t.Helper()

	users := &resetUserRepoMock{byEmail: map[string]domain.User{
		"client@example.com": {ID: "user-1", Email: "client@example.com", Name: "Jeanne"},
	}}
	tokens := &resetTokenRepoMock{}
	notifier := &notifierMock{}
	now := time.Date(2024, 5, 10, 11, 0, 0, 0, time.UTC)

	svc := NewPasswordResetService(users, tokens, notifier, security.DefaultPasswordValidator(), zaptest.NewLogger(t)).
		WithResetBaseURL("https://shop.example.com/reset-password").
		WithClock(fixedClock(now))

	return svc, users, tokens, notifier, now
}

func extractToken(t *testing.T, resetURL string) string {
	t.Helper()

	idx := strings.Index(resetURL, "token=")
	if idx < 0 {
		t.Fatalf("no token in reset URL %q", resetURL)
	}
	token := resetURL[idx+len("token="):]
	if amp := strings.Index(token, "&"); amp >= 0 {
		token = token[:amp]
	}
	return token
}

func TestRequestResetIssuesTokenAndSendsEmail(t *testing.T) {
	svc, _, tokens, notifier, now := newResetFixture(t)

	if err := svc.RequestReset(context.Background(), ResetRequestInput{Email: "Client@Example.com "}); err != nil {
		t.Fatalf("RequestReset returned error: %v", err)
	}

	if tokens.active == nil {
		t.Fatal("expected a stored token")
	}
	if tokens.active.UserID != "user-1" {
		t.Fatalf("token user = %s, want user-1", tokens.active.UserID)
	}
	if !tokens.active.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("token expiry = %v, want one hour after issuance", tokens.active.ExpiresAt)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(notifier.sent))
	}
	msg := notifier.sent[0]
	if msg.Email != "client@example.com" {
		t.Fatalf("email sent to %s, want normalized address", msg.Email)
	}

	raw := extractToken(t, msg.ResetURL)
	if security.HashToken(raw) != tokens.active.TokenHash {
		t.Fatal("stored hash must match the emailed token")
	}
	if raw == tokens.active.TokenHash {
		t.Fatal("raw token must never be persisted")
	}
}

func TestRequestResetUnknownEmailSilentNoWrites(t *testing.T) {
	svc, _, tokens, notifier, _ := newResetFixture(t)

	if err := svc.RequestReset(context.Background(), ResetRequestInput{Email: "stranger@example.com"}); err != nil {
		t.Fatalf("unknown address must not surface an error, got %v", err)
	}

	if tokens.replaced != 0 || tokens.active != nil {
		t.Fatal("unknown address must not store a token")
	}
	if len(notifier.sent) != 0 {
		t.Fatal("unknown address must not trigger an email")
	}
}

func TestRequestResetRejectsMalformedEmail(t *testing.T) {
	svc, _, _, _, _ := newResetFixture(t)

	for _, email := range []string{"", "   ", "not-an-email", "a@b@c"} {
		if err := svc.RequestReset(context.Background(), ResetRequestInput{Email: email}); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("email %q: expected ErrInvalidEmail, got %v", email, err)
		}
	}
}

func TestRequestResetStorageFailureIsSwallowed(t *testing.T) {
	svc, _, tokens, notifier, _ := newResetFixture(t)
	tokens.replaceErr = errors.New("connection refused")

	if err := svc.RequestReset(context.Background(), ResetRequestInput{Email: "client@example.com"}); err != nil {
		t.Fatalf("storage failure must not surface, got %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("no email should be sent when the token was not stored")
	}
}

func TestRequestResetReplacesPriorToken(t *testing.T) {
	svc, _, tokens, notifier, _ := newResetFixture(t)

	if err := svc.RequestReset(context.Background(), ResetRequestInput{Email: "client@example.com"}); err != nil {
		t.Fatalf("first request returned error: %v", err)
	}
	firstHash := tokens.active.TokenHash

	if err := svc.RequestReset(context.Background(), ResetRequestInput{Email: "client@example.com"}); err != nil {
		t.Fatalf("second request returned error: %v", err)
	}

	if tokens.replaced != 2 {
		t.Fatalf("expected two replace calls, got %d", tokens.replaced)
	}
	if tokens.active.TokenHash == firstHash {
		t.Fatal("second issuance must store a fresh token")
	}

	// The first link is dead: its hash no longer matches the active row.
	firstRaw := extractToken(t, notifier.sent[0].ResetURL)
	if _, err := tokens.GetActiveByHash(context.Background(), "user-1", security.HashToken(firstRaw)); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("first token should be invalidated, got %v", err)
	}
}

func TestRequestResetRateLimited(t *testing.T) {
	svc, _, _, _, _ := newResetFixture(t)
	svc.WithRateLimit(newRateLimitStoreMock(), 2, time.Hour)

	for i := 0; i < 2; i++ {
		if err := svc.RequestReset(context.Background(), ResetRequestInput{Email: "client@example.com"}); err != nil {
			t.Fatalf("request %d returned error: %v", i+1, err)
		}
	}

	err := svc.RequestReset(context.Background(), ResetRequestInput{Email: "client@example.com"})
	var limited *RateLimitExceededError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitExceededError, got %v", err)
	}
	if limited.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", limited.RetryAfter)
	}
}

func TestConfirmResetHappyPath(t *testing.T) {
	svc, users, tokens, notifier, now := newResetFixture(t)

	if err := svc.RequestReset(context.Background(), ResetRequestInput{Email: "client@example.com"}); err != nil {
		t.Fatalf("RequestReset returned error: %v", err)
	}
	raw := extractToken(t, notifier.sent[0].ResetURL)

	err := svc.ConfirmReset(context.Background(), ResetConfirmInput{
		Email:       "client@example.com",
		Token:       raw,
		NewPassword: strongPassword,
	})
	if err != nil {
		t.Fatalf("ConfirmReset returned error: %v", err)
	}

	if users.updatedID != "user-1" {
		t.Fatalf("password updated for %s, want user-1", users.updatedID)
	}
	if users.updatedAlgo != security.PasswordAlgo {
		t.Fatalf("algo = %s, want %s", users.updatedAlgo, security.PasswordAlgo)
	}
	if !users.updatedAt.Equal(now) {
		t.Fatalf("changedAt = %v, want %v", users.updatedAt, now)
	}
	if ok, _ := security.VerifyPassword(strongPassword, users.updatedHash); !ok {
		t.Fatal("stored hash must verify against the new password")
	}
	if len(tokens.consumed) != 1 {
		t.Fatalf("expected the token to be consumed once, got %d", len(tokens.consumed))
	}
}

func TestConfirmResetTokenSingleUse(t *testing.T) {
	svc, _, _, notifier, _ := newResetFixture(t)

	if err := svc.RequestReset(context.Background(), ResetRequestInput{Email: "client@example.com"}); err != nil {
		t.Fatalf("RequestReset returned error: %v", err)
	}
	raw := extractToken(t, notifier.sent[0].ResetURL)

	input := ResetConfirmInput{Email: "client@example.com", Token: raw, NewPassword: strongPassword}
	if err := svc.ConfirmReset(context.Background(), input); err != nil {
		t.Fatalf("first confirmation returned error: %v", err)
	}

	if err := svc.ConfirmReset(context.Background(), input); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("second confirmation: expected ErrTokenNotFound, got %v", err)
	}
}

func TestConfirmResetExpiredTokenBurned(t *testing.T) {
	svc, _, tokens, notifier, now := newResetFixture(t)
	svc.WithTTL(10 * time.Minute)

	if err := svc.RequestReset(context.Background(), ResetRequestInput{Email: "client@example.com"}); err != nil {
		t.Fatalf("RequestReset returned error: %v", err)
	}
	raw := extractToken(t, notifier.sent[0].ResetURL)

	svc.WithClock(fixedClock(now.Add(11 * time.Minute)))

	err := svc.ConfirmReset(context.Background(), ResetConfirmInput{
		Email:       "client@example.com",
		Token:       raw,
		NewPassword: strongPassword,
	})
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	if !tokens.active.Used {
		t.Fatal("expired token must be burned on the redemption attempt")
	}
}

func TestConfirmResetWrongToken(t *testing.T) {
	svc, _, _, _, _ := newResetFixture(t)

	if err := svc.RequestReset(context.Background(), ResetRequestInput{Email: "client@example.com"}); err != nil {
		t.Fatalf("RequestReset returned error: %v", err)
	}

	err := svc.ConfirmReset(context.Background(), ResetConfirmInput{
		Email:       "client@example.com",
		Token:       "forged-token",
		NewPassword: strongPassword,
	})
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestConfirmResetUnknownEmail(t *testing.T) {
	svc, _, _, _, _ := newResetFixture(t)

	err := svc.ConfirmReset(context.Background(), ResetConfirmInput{
		Email:       "stranger@example.com",
		Token:       "whatever",
		NewPassword: strongPassword,
	})
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound for unknown email, got %v", err)
	}
}

func TestConfirmResetWeakPasswordRejectedBeforeTokenSpend(t *testing.T) {
	svc, _, tokens, notifier, _ := newResetFixture(t)

	if err := svc.RequestReset(context.Background(), ResetRequestInput{Email: "client@example.com"}); err != nil {
		t.Fatalf("RequestReset returned error: %v", err)
	}
	raw := extractToken(t, notifier.sent[0].ResetURL)

	err := svc.ConfirmReset(context.Background(), ResetConfirmInput{
		Email:       "client@example.com",
		Token:       raw,
		NewPassword: "weak",
	})
	if !errors.Is(err, ErrNewPasswordInvalid) {
		t.Fatalf("expected ErrNewPasswordInvalid, got %v", err)
	}
	if len(tokens.consumed) != 0 {
		t.Fatal("token must survive a rejected password so the user can retry")
	}
}
