package podauth

import (
	"context"
	"strings"
	"time"
)

// Purpose namespaces OTP challenges so a verification code can not be
// used in place of a reset code for the same email.
type Purpose string

const (
	PurposeAccountVerification Purpose = "ACCOUNT_VERIFICATION"
	PurposePasswordReset       Purpose = "PASSWORD_RESET"
)

// ReasonForgotPassword is the legacy query value clients send to ask for a
// password reset code.
const ReasonForgotPassword = "FORGOTPASSWORD"

const (
	// DefaultOTPTTL is how long an issued code stays valid
	DefaultOTPTTL = 10 * time.Minute
	// DefaultOTPMaxAttempts is the number of failed verifications a
	// challenge tolerates before it is discarded
	DefaultOTPMaxAttempts = 5
	// DefaultResetSessionTTL bounds how long a reset grant can wait
	DefaultResetSessionTTL = 15 * time.Minute
)

// ParsePurpose maps user input to a Purpose. Empty input selects
// account verification.
func ParsePurpose(raw string) (Purpose, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", string(PurposeAccountVerification):
		return PurposeAccountVerification, nil
	case string(PurposePasswordReset), ReasonForgotPassword:
		return PurposePasswordReset, nil
	default:
		return "", ErrInvalidPurpose
	}
}

// PurposeFromReason follows the original query contract: FORGOTPASSWORD
// asks for a reset code, anything else for a verification code.
func PurposeFromReason(reason string) Purpose {
	if p, err := ParsePurpose(reason); err == nil {
		return p
	}
	return PurposeAccountVerification
}

// GrantsReset reports whether verifying a code of this purpose opens a
// password reset
func (p Purpose) GrantsReset() bool {
	return p == PurposePasswordReset
}

// ChallengeKey identifies an outstanding OTP challenge
type ChallengeKey struct {
	Email   string
	Purpose Purpose
}

func (k ChallengeKey) String() string {
	return string(k.Purpose) + ":" + k.Email
}

// Challenge is an outstanding one time password
type Challenge struct {
	Email     string
	Purpose   Purpose
	Code      string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Attempts  int
	Consumed  bool
}

// Key returns the store key of the challenge
func (c *Challenge) Key() ChallengeKey {
	return ChallengeKey{Email: c.Email, Purpose: c.Purpose}
}

// Expired reports whether the challenge is past its expiry at now
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ResetGrantState is the state of the reset grant of an email
type ResetGrantState string

const (
	// ResetGranted is recorded by a successful OTP verification
	ResetGranted ResetGrantState = "granted"
	// ResetSessionOpen is recorded by CreateResetSession
	ResetSessionOpen ResetGrantState = "open"
)

// ResetGrant authorizes exactly one password change for Email
type ResetGrant struct {
	Email     string
	State     ResetGrantState
	ExpiresAt time.Time
}

// ChallengeStore keeps OTP challenges and reset grants. Implementations
// must make every method atomic per key.
type ChallengeStore interface {
	// Put stores the challenge, replacing any outstanding one for its key.
	Put(ctx context.Context, challenge *Challenge) error
	// Verify compares code with the live challenge for key. On a match the
	// challenge is consumed and, for password reset challenges, a reset
	// grant is recorded for the email in the same step. On a mismatch the attempts counter grows and the
	// challenge is discarded once it reaches the limit.
	Verify(ctx context.Context, key ChallengeKey, code string) error
	// Discard removes the challenge for key if it still holds code.
	Discard(ctx context.Context, key ChallengeKey, code string) error
	// OpenResetSession moves a granted reset grant to the open state.
	OpenResetSession(ctx context.Context, email string) error
	// ConsumeResetGrant removes a granted or open reset grant.
	ConsumeResetGrant(ctx context.Context, email string) error
}

// ChallengeStoreOptions are shared by the store implementations
type ChallengeStoreOptions struct {
	MaxAttempts int
	ResetTTL    time.Duration
}

func (o ChallengeStoreOptions) withDefaults() ChallengeStoreOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultOTPMaxAttempts
	}
	if o.ResetTTL <= 0 {
		o.ResetTTL = DefaultResetSessionTTL
	}
	return o
}
