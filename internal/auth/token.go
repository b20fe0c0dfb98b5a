// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// PasswordResetSalt is the purpose tag bound into every password-reset token.
const PasswordResetSalt = "password-reset-salt"

// DefaultResetTokenMaxAge is how long a password-reset link stays valid.
const DefaultResetTokenMaxAge = time.Hour

// Token verification errors. Callers branch on these to show distinct messages.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// ResetTokens issues and verifies stateless, signed, time-limited tokens
// that carry a user's email address.
type ResetTokens struct {
	key     []byte
	purpose string
	maxAge  time.Duration
	now     func() time.Time
}

// ResetTokenOption configures ResetTokens.
type ResetTokenOption func(*ResetTokens)

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) ResetTokenOption {
	return func(t *ResetTokens) {
		t.now = now
	}
}

// WithMaxAge overrides the validity window.
func WithMaxAge(d time.Duration) ResetTokenOption {
	return func(t *ResetTokens) {
		t.maxAge = d
	}
}

// NewResetTokens creates a token issuer. The signing key is derived from the
// application secret and the purpose salt, so a token minted for one purpose
// never verifies for another even under the same secret.
func NewResetTokens(secret string, opts ...ResetTokenOption) *ResetTokens {
	t := &ResetTokens{
		key:     deriveKey(secret, PasswordResetSalt),
		purpose: PasswordResetSalt,
		maxAge:  DefaultResetTokenMaxAge,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// deriveKey computes HMAC-SHA256(secret, salt).
func deriveKey(secret, salt string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(salt))
	return mac.Sum(nil)
}

// MaxAge returns the validity window of issued tokens.
func (t *ResetTokens) MaxAge() time.Duration {
	return t.maxAge
}

// Issue creates a token for the given email, stamped with the current time.
func (t *ResetTokens) Issue(email string) (string, error) {
	issuedAt := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		Audience:  jwt.ClaimStrings{t.purpose},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(t.maxAge)),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("signing reset token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, purpose and age, and returns the embedded email.
// Returns ErrTokenExpired when the token is older than the validity window and
// ErrTokenInvalid for any other failure.
func (t *ResetTokens) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(t.purpose),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		// exp is inclusive: a token exactly maxAge old is still accepted.
		jwt.WithLeeway(time.Second),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}
