package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidAccessToken indicates the token failed signature or claim validation.
var ErrInvalidAccessToken = errors.New("jwt: invalid access token")

// ErrExpiredAccessToken indicates the token is structurally valid but past its expiry.
var ErrExpiredAccessToken = errors.New("jwt: access token expired")

// AccessClaims carries the verified identity extracted from an access token.
type AccessClaims struct {
	UserID string
	Email  string
	jwt.RegisteredClaims
}

// TokenVerifier validates HMAC-signed access tokens issued by the account service.
type TokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenVerifier constructs a verifier for the shared signing secret.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// WithClock overrides the verifier clock, primarily for testing.
func (v *TokenVerifier) WithClock(now func() time.Time) *TokenVerifier {
	if now != nil {
		v.now = now
	}
	return v
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verify parses and validates the supplied token string.
func (v *TokenVerifier) Verify(tokenString string) (*AccessClaims, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("jwt: signing secret not configured")
	}

	claims := &tokenClaims{}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidAccessToken
	}

	return &AccessClaims{
		UserID:           claims.Subject,
		Email:            claims.Email,
		RegisteredClaims: claims.RegisteredClaims,
	}, nil
}
