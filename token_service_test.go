package podauth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-podauth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenService(t *testing.T, clock *fakeClock, opts ...podauth.TokenServiceOption) *podauth.TokenService {
	t.Helper()
	opts = append([]podauth.TokenServiceOption{podauth.WithTokenClock(clock.Clock())}, opts...)
	return podauth.NewTokenService(newTestConfig(), opts...)
}

func TestTokenServiceRoundTrip(t *testing.T) {
	clock := newFakeClock()
	ts := newTokenService(t, clock)
	id := uuid.NewString()

	token, expiresAt, err := ts.Generate(id)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(15*time.Minute), expiresAt)

	claims, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID())
	assert.Equal(t, id, claims.Subject())
	assert.Equal(t, expiresAt.Unix(), claims.Expires().Unix())
	assert.Equal(t, clock.Now().Unix(), claims.IssuedAt().Unix())
}

func TestTokenServiceGenerateRequiresID(t *testing.T) {
	ts := newTokenService(t, newFakeClock())

	_, _, err := ts.Generate("")
	assert.Error(t, err)
}

func TestTokenServiceDefaultsTTL(t *testing.T) {
	cfg := newTestConfig()
	cfg.tokenTTL = 0
	clock := newFakeClock()
	ts := podauth.NewTokenService(cfg, podauth.WithTokenClock(clock.Clock()))

	_, expiresAt, err := ts.Generate("user-1")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(podauth.DefaultAccessTokenTTL), expiresAt)
}

func TestTokenServiceRejectsExpiredToken(t *testing.T) {
	clock := newFakeClock()
	ts := newTokenService(t, clock)

	token, _, err := ts.Generate("user-1")
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)

	_, err = ts.Validate(token)
	assert.ErrorIs(t, err, podauth.ErrTokenExpired)
	assert.True(t, podauth.IsTokenExpiredError(err))
}

func TestTokenServiceRejectsInvalidTokens(t *testing.T) {
	clock := newFakeClock()
	ts := newTokenService(t, clock)

	valid, _, err := ts.Generate("user-1")
	require.NoError(t, err)

	now := clock.Now()
	registered := jwt.RegisteredClaims{
		Issuer:    "podauth-test",
		Subject:   "user-1",
		Audience:  jwt.ClaimStrings{"podstream"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &podauth.JWTClaims{RegisteredClaims: registered, UID: "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	otherKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &podauth.JWTClaims{RegisteredClaims: registered, UID: "user-1"}).
		SignedString([]byte("another-key"))
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &podauth.JWTClaims{RegisteredClaims: registered, UID: "user-1"}).
		SignedString([]byte(newTestConfig().signingKey))
	require.NoError(t, err)

	foreignIssuer := registered
	foreignIssuer.Issuer = "someone-else"
	wrongIssuer, err := ts.SignClaims(&podauth.JWTClaims{RegisteredClaims: foreignIssuer, UID: "user-1"})
	require.NoError(t, err)

	noExpiry := registered
	noExpiry.ExpiresAt = nil
	withoutExpiry, err := ts.SignClaims(&podauth.JWTClaims{RegisteredClaims: noExpiry, UID: "user-1"})
	require.NoError(t, err)

	anonymous := registered
	anonymous.Subject = ""
	withoutSubject, err := ts.SignClaims(&podauth.JWTClaims{RegisteredClaims: anonymous})
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := map[string]string{
		"empty":           "",
		"garbage":         "not-a-token",
		"tampered":        tampered,
		"alg none":        unsigned,
		"wrong key":       otherKey,
		"other hmac alg":  hs512,
		"wrong issuer":    wrongIssuer,
		"missing expiry":  withoutExpiry,
		"missing subject": withoutSubject,
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				claims, err := ts.Validate(token)
				assert.Nil(t, claims)
				require.Error(t, err)
				assert.True(t, podauth.IsMalformedError(err), "got %v", err)
			})
		})
	}
}

func TestTokenServiceIssuePairWithoutRefreshStore(t *testing.T) {
	ts := newTokenService(t, newFakeClock())

	pair, err := ts.IssuePair(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Empty(t, pair.RefreshToken)

	_, err = ts.Refresh(context.Background(), "anything")
	assert.ErrorIs(t, err, podauth.ErrRefreshTokenInvalid)
	assert.NoError(t, ts.Revoke(context.Background(), "anything"))
}

func TestTokenServiceRefreshRotation(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	repo := podauth.NewRepositoryManager(newTestDB(t))
	ts := newTokenService(t, clock, podauth.WithRefreshTokenStore(repo.RefreshTokens()))

	user, err := repo.Users().Register(ctx, &podauth.User{Email: "r@x.com", PasswordHash: "hash"})
	require.NoError(t, err)

	pair, err := ts.IssuePair(ctx, user.ID.String())
	require.NoError(t, err)
	require.Len(t, pair.RefreshToken, 64)
	assert.Equal(t, clock.Now().Add(24*time.Hour), pair.RefreshExpiresAt)

	stored, err := repo.RefreshTokens().GetByIdentifier(ctx, podauth.HashRefreshToken(pair.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.UserID)

	next, err := ts.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	claims, err := ts.Validate(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID())

	_, err = ts.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, podauth.ErrRefreshTokenInvalid)

	require.NoError(t, ts.Revoke(ctx, next.RefreshToken))
	_, err = ts.Refresh(ctx, next.RefreshToken)
	assert.ErrorIs(t, err, podauth.ErrRefreshTokenInvalid)
}

func TestTokenServiceRejectsExpiredRefreshToken(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	repo := podauth.NewRepositoryManager(newTestDB(t))
	ts := newTokenService(t, clock, podauth.WithRefreshTokenStore(repo.RefreshTokens()))

	user, err := repo.Users().Register(ctx, &podauth.User{Email: "s@x.com", PasswordHash: "hash"})
	require.NoError(t, err)

	pair, err := ts.IssuePair(ctx, user.ID.String())
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)

	_, err = ts.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, podauth.ErrRefreshTokenInvalid)

	_, err = repo.RefreshTokens().GetByIdentifier(ctx, podauth.HashRefreshToken(pair.RefreshToken))
	assert.Error(t, err, "expired token should be removed on use")
}

func TestHashRefreshToken(t *testing.T) {
	a := podauth.HashRefreshToken("token")
	assert.Len(t, a, 64)
	assert.Equal(t, a, podauth.HashRefreshToken("token"))
	assert.NotEqual(t, a, podauth.HashRefreshToken("token2"))
}
