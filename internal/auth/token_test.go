package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-32-bytes-long!!!"

// fakeClock is a settable time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestResetTokens_RoundTrip(t *testing.T) {
	tokens := NewResetTokens(testSecret)

	token, err := tokens.Issue("alice@example.com")
	require.NoError(t, err)
	assert.NotContains(t, token, "=", "token must be URL safe")

	email, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)
}

func TestResetTokens_ExpiryBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{"fresh", 0, nil},
		{"one second before limit", 3599 * time.Second, nil},
		{"exactly at limit", 3600 * time.Second, nil},
		{"one second past limit", 3601 * time.Second, ErrTokenExpired},
		{"a day later", 24 * time.Hour, ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			tokens := NewResetTokens(testSecret, WithClock(clock.Now))

			token, err := tokens.Issue("alice@example.com")
			require.NoError(t, err)

			clock.Advance(tt.elapsed)
			email, err := tokens.Verify(token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, email)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice@example.com", email)
		})
	}
}

func TestResetTokens_WrongSecret(t *testing.T) {
	token, err := NewResetTokens(testSecret).Issue("alice@example.com")
	require.NoError(t, err)

	_, err = NewResetTokens("another-secret-key-32-bytes-long!").Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.False(t, errors.Is(err, ErrTokenExpired))
}

func TestResetTokens_WrongPurpose(t *testing.T) {
	// Signed with the right derived key but a different audience.
	claims := jwt.RegisteredClaims{
		Subject:   "alice@example.com",
		Audience:  jwt.ClaimStrings{"email-confirm-salt"},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString(deriveKey(testSecret, PasswordResetSalt))
	require.NoError(t, err)

	_, err = NewResetTokens(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestResetTokens_RawSecretKeyRejected(t *testing.T) {
	// A token signed with the underived secret must not verify.
	claims := jwt.RegisteredClaims{
		Subject:   "alice@example.com",
		Audience:  jwt.ClaimStrings{PasswordResetSalt},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewResetTokens(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestResetTokens_Tampered(t *testing.T) {
	tokens := NewResetTokens(testSecret)
	token, err := tokens.Issue("alice@example.com")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	forged, err := NewResetTokens(testSecret).Issue("mallory@example.com")
	require.NoError(t, err)
	forgedParts := strings.Split(forged, ".")

	// Swap in another payload under the original signature.
	spliced := parts[0] + "." + forgedParts[1] + "." + parts[2]

	for name, tok := range map[string]string{
		"empty":     "",
		"garbage":   "not-a-token",
		"truncated": token[:len(token)-4],
		"spliced":   spliced,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Verify(tok)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}

func TestResetTokens_AlgNoneRejected(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "alice@example.com",
		Audience:  jwt.ClaimStrings{PasswordResetSalt},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewResetTokens(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestResetTokens_UniquePerIssue(t *testing.T) {
	clock := newFakeClock()
	tokens := NewResetTokens(testSecret, WithClock(clock.Now))

	a, err := tokens.Issue("alice@example.com")
	require.NoError(t, err)
	b, err := tokens.Issue("alice@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestResetTokens_WithMaxAge(t *testing.T) {
	clock := newFakeClock()
	tokens := NewResetTokens(testSecret, WithClock(clock.Now), WithMaxAge(10*time.Minute))
	assert.Equal(t, 10*time.Minute, tokens.MaxAge())

	token, err := tokens.Issue("alice@example.com")
	require.NoError(t, err)

	clock.Advance(11 * time.Minute)
	_, err = tokens.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}
