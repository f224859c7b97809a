package podauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	// DefaultAccessTokenTTL keeps access tokens short lived
	DefaultAccessTokenTTL = 15 * time.Minute
	// DefaultRefreshTokenTTL is how long a refresh token can sit unused
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	refreshTokenBytes = 32
)

// TokenPair is what a successful authentication hands back to clients
type TokenPair struct {
	AccessToken      string    `json:"token"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt,omitempty"`
}

// RefreshTokenStore persists refresh tokens. Tokens are referenced by
// their SHA-256 digest, raw values never reach the store.
type RefreshTokenStore interface {
	Save(ctx context.Context, record *RefreshToken) error
	// Rotate atomically swaps the record identified by oldHash for next and
	// returns the user the token belonged to.
	Rotate(ctx context.Context, oldHash string, next *RefreshToken, now time.Time) (uuid.UUID, error)
	DeleteByHash(ctx context.Context, hash string) error
}

// TokenService issues HS256 access tokens and rotating refresh tokens
type TokenService struct {
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	refresh    RefreshTokenStore
	clock      Clock
	logger     Logger
}

var _ TokenIssuer = (*TokenService)(nil)

// TokenServiceOption configures a TokenService
type TokenServiceOption func(*TokenService)

// WithTokenClock overrides the time source
func WithTokenClock(c Clock) TokenServiceOption {
	return func(ts *TokenService) {
		ts.clock = c
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(l Logger) TokenServiceOption {
	return func(ts *TokenService) {
		ts.logger = normalizeLogger(l)
	}
}

// WithRefreshTokenStore enables refresh tokens
func WithRefreshTokenStore(store RefreshTokenStore) TokenServiceOption {
	return func(ts *TokenService) {
		ts.refresh = store
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg Config, opts ...TokenServiceOption) *TokenService {
	ts := &TokenService{
		signingKey: []byte(cfg.GetSigningKey()),
		accessTTL:  cfg.GetTokenExpiration(),
		refreshTTL: cfg.GetRefreshTokenExpiration(),
		issuer:     cfg.GetIssuer(),
		audience:   jwt.ClaimStrings(cfg.GetAudience()),
		logger:     defLogger{},
	}

	if ts.accessTTL <= 0 {
		ts.accessTTL = DefaultAccessTokenTTL
	}

	if ts.refreshTTL <= 0 {
		ts.refreshTTL = DefaultRefreshTokenTTL
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts
}

// Generate creates an access token for identityID
func (ts *TokenService) Generate(identityID string) (string, time.Time, error) {
	if identityID == "" {
		return "", time.Time{}, errors.New("identity id is required", errors.CategoryBadInput)
	}

	now := ts.clock.now()
	expiresAt := now.Add(ts.accessTTL)

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   identityID,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID: identityID,
	}

	signed, err := ts.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenService) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string. Every failure maps to
// ErrTokenExpired or a malformed token error, it never panics.
func (ts *TokenService) Validate(tokenString string) (AuthClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.clock.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Warn("token validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(ErrTokenMalformed.Code)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.UserID() == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// IssuePair creates an access token and, when a refresh store is
// configured, a refresh token for identityID.
func (ts *TokenService) IssuePair(ctx context.Context, identityID string) (*TokenPair, error) {
	access, expiresAt, err := ts.Generate(identityID)
	if err != nil {
		return nil, err
	}

	pair := &TokenPair{
		AccessToken: access,
		ExpiresAt:   expiresAt,
	}

	if ts.refresh == nil {
		return pair, nil
	}

	userID, err := uuid.Parse(identityID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "identity id is not a UUID")
	}

	raw, record, err := ts.newRefreshToken(userID)
	if err != nil {
		return nil, err
	}

	if err := ts.refresh.Save(ctx, record); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to store refresh token")
	}

	pair.RefreshToken = raw
	pair.RefreshExpiresAt = record.ExpiresAt

	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token
// is invalidated.
func (ts *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if ts.refresh == nil || refreshToken == "" {
		return nil, ErrRefreshTokenInvalid
	}

	raw, next, err := ts.newRefreshToken(uuid.Nil)
	if err != nil {
		return nil, err
	}

	userID, err := ts.refresh.Rotate(ctx, HashRefreshToken(refreshToken), next, ts.clock.now())
	if err != nil {
		return nil, err
	}

	access, expiresAt, err := ts.Generate(userID.String())
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		ExpiresAt:        expiresAt,
		RefreshToken:     raw,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// Revoke deletes a refresh token. Unknown tokens are ignored.
func (ts *TokenService) Revoke(ctx context.Context, refreshToken string) error {
	if ts.refresh == nil || refreshToken == "" {
		return nil
	}
	return ts.refresh.DeleteByHash(ctx, HashRefreshToken(refreshToken))
}

func (ts *TokenService) newRefreshToken(userID uuid.UUID) (string, *RefreshToken, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate refresh token")
	}

	raw := hex.EncodeToString(buf)
	now := ts.clock.now()

	return raw, &RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashRefreshToken(raw),
		ExpiresAt: now.Add(ts.refreshTTL),
		CreatedAt: &now,
	}, nil
}

// HashRefreshToken returns the digest used to look refresh tokens up
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
