package podauth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// operationTimeout bounds every repository round trip made by an operation
const operationTimeout = 10 * time.Second

// AuthResult is returned by the operations that authenticate a user.
// Tokens is nil while a two phase signup waits for its verification code.
type AuthResult struct {
	User   *User
	Tokens *TokenPair
}

// Pending reports whether the identity still has to verify its email
func (r *AuthResult) Pending() bool {
	return r != nil && r.Tokens == nil
}

// SessionMachine implements signup, signin and the OTP driven password
// reset flow:
//
//	IDLE -> OTP_ISSUED -> RESET_GRANTED -> RESET_SESSION_OPEN -> IDLE
//
// Every transition after OTP_ISSUED is single use and the challenge store
// makes each one atomic per (email, purpose).
type SessionMachine struct {
	repo      RepositoryManager
	hasher    PasswordHasher
	tokens    TokenIssuer
	store     ChallengeStore
	notifier  Notifier
	generator OTPGenerator
	activity  ActivitySink
	logger    Logger
	clock     Clock

	otpLength         int
	otpTTL            time.Duration
	requireVerifiedID bool
}

// SessionMachineOption configures a SessionMachine
type SessionMachineOption func(*SessionMachine)

// WithPasswordHasher overrides the bcrypt hasher
func WithPasswordHasher(h PasswordHasher) SessionMachineOption {
	return func(m *SessionMachine) {
		if h != nil {
			m.hasher = h
		}
	}
}

// WithOTPGenerator overrides the crypto/rand code generator
func WithOTPGenerator(g OTPGenerator) SessionMachineOption {
	return func(m *SessionMachine) {
		if g != nil {
			m.generator = g
		}
	}
}

// WithActivitySink sets the sink used to emit activity events
func WithActivitySink(sink ActivitySink) SessionMachineOption {
	return func(m *SessionMachine) {
		m.activity = normalizeActivitySink(sink)
	}
}

// WithLogger sets the logger
func WithLogger(l Logger) SessionMachineOption {
	return func(m *SessionMachine) {
		m.logger = normalizeLogger(l)
	}
}

// WithClock overrides the time source
func WithClock(c Clock) SessionMachineOption {
	return func(m *SessionMachine) {
		m.clock = c
	}
}

// NewSessionMachine wires the collaborators of the auth flows
func NewSessionMachine(
	repo RepositoryManager,
	tokens TokenIssuer,
	store ChallengeStore,
	notifier Notifier,
	cfg Config,
	opts ...SessionMachineOption,
) *SessionMachine {
	m := &SessionMachine{
		repo:              repo,
		tokens:            tokens,
		store:             store,
		notifier:          notifier,
		hasher:            NewBcryptHasher(0),
		generator:         defaultOTPGenerator,
		activity:          noopActivitySink{},
		logger:            defLogger{},
		otpLength:         cfg.GetOTPLength(),
		otpTTL:            cfg.GetOTPExpiration(),
		requireVerifiedID: cfg.GetRequireEmailVerification(),
	}

	if m.otpLength == 0 {
		m.otpLength = DefaultOTPLength
	}

	if m.otpTTL <= 0 {
		m.otpTTL = DefaultOTPTTL
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Signup registers a local identity. With email verification enabled the
// identity starts unverified, a verification code is sent and no tokens
// are issued.
func (m *SessionMachine) Signup(ctx context.Context, email, password string, profile Profile) (*AuthResult, error) {
	if err := checkContext(ctx, "signup"); err != nil {
		return nil, err
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := m.hasher.HashPassword(password)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	user, err := m.repo.Users().Register(ctx, &User{
		Email:         email,
		PasswordHash:  hash,
		AuthProvider:  ProviderLocal,
		Name:          strings.TrimSpace(profile.Name),
		Img:           strings.TrimSpace(profile.Img),
		EmailVerified: !m.requireVerifiedID,
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventSignup,
		UserID:    user.ID.String(),
		Email:     user.Email,
		Metadata: map[string]any{
			"pending_verification": m.requireVerifiedID,
		},
	})

	if m.requireVerifiedID {
		// the identity stays registered when the code is not delivered,
		// the caller asks for a new one with IssueOTP
		if err := m.IssueOTP(ctx, user.Email, user.Name, PurposeAccountVerification); err != nil {
			m.logger.Warn("signup verification code not delivered", "email", user.Email, "error", err)
			return nil, err
		}
		return &AuthResult{User: user}, nil
	}

	return m.authenticate(ctx, user)
}

// Signin authenticates a local identity with its password
func (m *SessionMachine) Signin(ctx context.Context, email, password string) (*AuthResult, error) {
	if err := checkContext(ctx, "signin"); err != nil {
		return nil, err
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	user, err := m.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if user.IsFederated() {
		m.recordSigninFailure(ctx, user, "federated_account")
		return nil, ErrFederatedAccount
	}

	if !m.hasher.VerifyPassword(password, user.PasswordHash) {
		m.recordSigninFailure(ctx, user, "wrong_password")
		return nil, ErrMismatchedHashAndPassword
	}

	if m.requireVerifiedID && !user.EmailVerified {
		m.recordSigninFailure(ctx, user, "email_not_verified")
		return nil, ErrEmailNotVerified
	}

	result, err := m.authenticate(ctx, user)
	if err != nil {
		return nil, err
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventSigninSuccess,
		UserID:    user.ID.String(),
		Email:     user.Email,
	})

	return result, nil
}

// FederatedSignin signs in an identity asserted by an external provider,
// creating it on first use. The assertion is trusted as is.
func (m *SessionMachine) FederatedSignin(ctx context.Context, email string, profile Profile) (*AuthResult, error) {
	if err := checkContext(ctx, "federated signin"); err != nil {
		return nil, err
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	user, err := m.repo.Users().GetByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, ErrIdentityNotFound):
		user, err = m.registerFederated(ctx, email, profile)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if !user.IsFederated() {
		return nil, ErrProviderConflict
	}

	result, err := m.authenticate(ctx, user)
	if err != nil {
		return nil, err
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventFederatedSignin,
		UserID:    user.ID.String(),
		Email:     user.Email,
	})

	return result, nil
}

func (m *SessionMachine) registerFederated(ctx context.Context, email string, profile Profile) (*User, error) {
	now := m.clock.now()
	user, err := m.repo.Users().Register(ctx, &User{
		Email:           email,
		AuthProvider:    ProviderFederated,
		Name:            strings.TrimSpace(profile.Name),
		Img:             strings.TrimSpace(profile.Img),
		EmailVerified:   true,
		EmailVerifiedAt: &now,
	})

	if errors.Is(err, ErrEmailInUse) {
		// lost a race against a concurrent signup for the same email
		return m.repo.Users().GetByEmail(ctx, email)
	}

	return user, err
}

// IssueOTP sends a fresh code for (email, purpose). The challenge is stored
// before the notifier runs and replaces any outstanding one. When delivery
// fails the challenge is discarded, unless a newer one replaced it.
func (m *SessionMachine) IssueOTP(ctx context.Context, email, name string, purpose Purpose) error {
	if err := checkContext(ctx, "issue OTP"); err != nil {
		return err
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	if err := validatePurpose(purpose); err != nil {
		return err
	}

	code, err := m.generator.Generate(m.otpLength)
	if err != nil {
		return err
	}

	now := m.clock.now()
	challenge := &Challenge{
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.otpTTL),
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	if err := m.store.Put(ctx, challenge); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to store OTP challenge")
	}

	err = m.notifier.SendOTP(ctx, OTPNotification{
		Email:     email,
		Name:      strings.TrimSpace(name),
		Code:      code,
		Purpose:   purpose,
		ExpiresIn: m.otpTTL,
	})
	if err != nil {
		if discardErr := m.store.Discard(ctx, challenge.Key(), code); discardErr != nil {
			m.logger.Warn("failed to discard undelivered OTP", "key", challenge.Key().String(), "error", discardErr)
		}
		return NewDeliveryError(err, email)
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventOTPIssued,
		Email:     email,
		Metadata: map[string]any{
			"purpose":    string(purpose),
			"expires_at": challenge.ExpiresAt,
		},
	})

	return nil
}

// VerifyOTP consumes the challenge for (email, purpose) when code matches.
// A password reset code grants one password reset for the email, an
// account verification code marks the email verified.
func (m *SessionMachine) VerifyOTP(ctx context.Context, email string, purpose Purpose, code string) error {
	if err := checkContext(ctx, "verify OTP"); err != nil {
		return err
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	if err := validatePurpose(purpose); err != nil {
		return err
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return ErrWrongOTP
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	key := ChallengeKey{Email: email, Purpose: purpose}
	if err := m.store.Verify(ctx, key, code); err != nil {
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			m.record(ctx, ActivityEvent{
				EventType: ActivityEventOTPFailed,
				Email:     email,
				Metadata: map[string]any{
					"purpose": string(purpose),
					"reason":  richErr.TextCode,
				},
			})
			return richErr
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to verify OTP")
	}

	if purpose == PurposeAccountVerification {
		if err := m.markVerified(ctx, email); err != nil {
			return err
		}
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventOTPVerified,
		Email:     email,
		Metadata: map[string]any{
			"purpose": string(purpose),
		},
	})

	return nil
}

func (m *SessionMachine) markVerified(ctx context.Context, email string) error {
	user, err := m.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		// codes can be verified before the account exists
		if errors.Is(err, ErrIdentityNotFound) {
			return nil
		}
		return err
	}

	if user.EmailVerified {
		return nil
	}

	return m.repo.Users().MarkEmailVerified(ctx, user.ID, m.clock.now())
}

// CreateResetSession opens the reset session granted by a verified code.
// It succeeds once per grant.
func (m *SessionMachine) CreateResetSession(ctx context.Context, email string) error {
	if err := checkContext(ctx, "create reset session"); err != nil {
		return err
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	if err := m.store.OpenResetSession(ctx, email); err != nil {
		return err
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventResetSessionOpen,
		Email:     email,
	})

	return nil
}

// ResetPassword stores a new password for email. The reset grant is
// consumed first so it can not be replayed, whatever happens next.
func (m *SessionMachine) ResetPassword(ctx context.Context, email, password string) error {
	if err := checkContext(ctx, "reset password"); err != nil {
		return err
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	if err := m.store.ConsumeResetGrant(ctx, email); err != nil {
		return err
	}

	if err := ValidatePassword(password); err != nil {
		return err
	}

	var user *User
	err = m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := m.repo.Users().GetByEmailTx(ctx, tx, email)
		if err != nil {
			return err
		}
		user = found

		if user.IsFederated() {
			return ErrFederatedAccount
		}

		hash, err := m.hasher.HashPassword(password)
		if err != nil {
			return err
		}

		return m.repo.Users().ResetPasswordTx(ctx, tx, user.ID, hash)
	})

	if err != nil {
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			return richErr
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to reset password")
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		UserID:    user.ID.String(),
		Email:     user.Email,
	})

	return nil
}

// FindUserByEmail returns nil when email is registered and
// ErrIdentityNotFound otherwise.
func (m *SessionMachine) FindUserByEmail(ctx context.Context, email string) error {
	if err := checkContext(ctx, "find user"); err != nil {
		return err
	}

	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	_, err = m.repo.Users().GetByEmail(ctx, email)
	return err
}

// Refresh exchanges a refresh token for a new token pair
func (m *SessionMachine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := checkContext(ctx, "refresh"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	return m.tokens.Refresh(ctx, strings.TrimSpace(refreshToken))
}

// Logout revokes refreshToken. It never fails the caller.
func (m *SessionMachine) Logout(ctx context.Context, refreshToken string) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	if err := m.tokens.Revoke(ctx, refreshToken); err != nil {
		m.logger.Warn("failed to revoke refresh token", "error", err)
	}
}

// Validate exposes the access token validation of the token issuer
func (m *SessionMachine) Validate(token string) (AuthClaims, error) {
	return m.tokens.Validate(token)
}

func (m *SessionMachine) authenticate(ctx context.Context, user *User) (*AuthResult, error) {
	pair, err := m.tokens.IssuePair(ctx, user.ID.String())
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Tokens: pair}, nil
}

func (m *SessionMachine) recordSigninFailure(ctx context.Context, user *User, reason string) {
	m.record(ctx, ActivityEvent{
		EventType: ActivityEventSigninFailure,
		UserID:    user.ID.String(),
		Email:     user.Email,
		Metadata: map[string]any{
			"reason": reason,
		},
	})
}

func (m *SessionMachine) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.clock.now()
	}

	if err := normalizeActivitySink(m.activity).Record(ctx, event); err != nil {
		m.logger.Warn("failed to record activity event", "event", string(event.EventType), "error", err)
	}
}

func validatePurpose(purpose Purpose) error {
	switch purpose {
	case PurposeAccountVerification, PurposePasswordReset:
		return nil
	default:
		return ErrInvalidPurpose
	}
}

func checkContext(ctx context.Context, operation string) error {
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.CategoryOperation, "context cancelled during "+operation)
	default:
		return nil
	}
}
