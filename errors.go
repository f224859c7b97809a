package podauth

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeMissingEmail        = "MISSING_EMAIL"
	TextCodeInvalidEmail        = "INVALID_EMAIL"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
	TextCodePasswordTooLong     = "PASSWORD_TOO_LONG"
	TextCodeEmailInUse          = "EMAIL_IN_USE"
	TextCodeProviderConflict    = "PROVIDER_CONFLICT"
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeFederatedAccount    = "FEDERATED_ACCOUNT"
	TextCodeWrongPassword       = "WRONG_PASSWORD"
	TextCodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	TextCodeWrongOTP            = "WRONG_OTP"
	TextCodeOTPExpired          = "OTP_EXPIRED"
	TextCodeOTPAttemptsExceeded = "OTP_ATTEMPTS_EXCEEDED"
	TextCodeInvalidPurpose      = "INVALID_PURPOSE"
	TextCodeSessionExpired      = "SESSION_EXPIRED"
	TextCodeDeliveryFailed      = "DELIVERY_FAILED"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenMalformed      = "TOKEN_MALFORMED"
	TextCodeRefreshTokenInvalid = "REFRESH_TOKEN_INVALID"
)

// StatusSessionExpired is the non standard status the reset password
// endpoint answers with when there is no usable reset session.
const StatusSessionExpired = 440

// ErrMissingEmail is returned when a request has no email
var ErrMissingEmail = errors.New("email is required", errors.CategoryValidation).
	WithTextCode(TextCodeMissingEmail).
	WithCode(http.StatusUnprocessableEntity)

// ErrInvalidEmail is returned when an email can not be parsed
var ErrInvalidEmail = errors.New("email is not a valid address", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidEmail).
	WithCode(http.StatusUnprocessableEntity)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password can not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(http.StatusUnprocessableEntity)

// ErrPasswordTooLong is returned for passwords over the 72 bytes bcrypt
// takes into account
var ErrPasswordTooLong = errors.New("password can not be longer than 72 bytes", errors.CategoryValidation).
	WithTextCode(TextCodePasswordTooLong).
	WithCode(http.StatusUnprocessableEntity)

// ErrEmailInUse is returned by signup when the email is taken
var ErrEmailInUse = errors.New("email is already in use", errors.CategoryConflict).
	WithTextCode(TextCodeEmailInUse).
	WithCode(errors.CodeConflict)

// ErrProviderConflict is returned by federated signin for an email
// registered with a password.
var ErrProviderConflict = errors.New("email is registered with a password", errors.CategoryConflict).
	WithTextCode(TextCodeProviderConflict).
	WithCode(errors.CodeConflict)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrFederatedAccount is returned when a federated identity tries to
// signin with a password.
var ErrFederatedAccount = errors.New("account uses federated signin", errors.CategoryAuth).
	WithTextCode(TextCodeFederatedAccount).
	WithCode(errors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is returned for wrong passwords
var ErrMismatchedHashAndPassword = errors.New("wrong credentials", errors.CategoryAuth).
	WithTextCode(TextCodeWrongPassword).
	WithCode(errors.CodeUnauthorized)

// ErrEmailNotVerified is returned by signin while the signup is waiting
// for its verification code.
var ErrEmailNotVerified = errors.New("email not verified", errors.CategoryAuthz).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeForbidden)

// ErrWrongOTP is returned for codes that do not match a live challenge
var ErrWrongOTP = errors.New("wrong OTP", errors.CategoryAuth).
	WithTextCode(TextCodeWrongOTP).
	WithCode(errors.CodeUnauthorized)

// ErrOTPExpired is returned when the challenge outlived its TTL
var ErrOTPExpired = errors.New("OTP expired", errors.CategoryAuth).
	WithTextCode(TextCodeOTPExpired).
	WithCode(errors.CodeUnauthorized)

// ErrOTPAttemptsExceeded is returned once a challenge reached the max
// number of failed attempts. The challenge is gone and a new OTP is needed.
var ErrOTPAttemptsExceeded = errors.New("too many OTP attempts, request a new code", errors.CategoryRateLimit).
	WithTextCode(TextCodeOTPAttemptsExceeded).
	WithCode(http.StatusTooManyRequests)

// ErrInvalidPurpose is returned for unknown OTP purposes
var ErrInvalidPurpose = errors.New("unknown OTP purpose", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidPurpose).
	WithCode(http.StatusUnprocessableEntity)

// ErrSessionExpired is returned when there is no reset grant to use
var ErrSessionExpired = errors.New("session expired", errors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(errors.CodeBadRequest)

// ErrTokenExpired is returned by Validate for expired access tokens
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned by Validate for any token that fails checks
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrRefreshTokenInvalid is returned for unknown or expired refresh tokens
var ErrRefreshTokenInvalid = errors.New("refresh token is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// NewDeliveryError wraps a notifier failure
func NewDeliveryError(err error, email string) *errors.Error {
	return errors.Wrap(err, errors.CategoryOperation, "failed to deliver OTP").
		WithTextCode(TextCodeDeliveryFailed).
		WithCode(http.StatusBadGateway).
		WithMetadata(map[string]any{
			"email": email,
		})
}

// HasTextCode reports whether err is a rich error carrying code
func HasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if HasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if HasTextCode(err, TextCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
