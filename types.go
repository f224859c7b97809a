package podauth

import (
	"context"
	"time"
)

// Logger is the logging contract used across the package. Messages are
// constant strings and args are alternating key/value pairs, as in
// logger.Warn("otp not delivered", "email", email, "error", err).
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the settings a SessionMachine and TokenService need
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() time.Duration
	GetRefreshTokenExpiration() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetOTPLength() int
	GetOTPExpiration() time.Duration
	GetOTPMaxAttempts() int
	GetResetSessionExpiration() time.Duration
	GetRequireEmailVerification() bool
}

// Clock returns the current time. Tests replace it to move time forward.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

// Identity is the minimal view of a user that other packages need
type Identity interface {
	ID() string
	Email() string
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, hash string) bool
}

// TokenIssuer issues and validates bearer tokens
type TokenIssuer interface {
	IssuePair(ctx context.Context, identityID string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Revoke(ctx context.Context, refreshToken string) error
	TokenValidator
}

// Profile is the optional data sent alongside a signup or a federated signin
type Profile struct {
	Name string `json:"name"`
	Img  string `json:"img"`
}
