package podauth

import (
	stderrors "errors"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-podauth/middleware/jwtware"
)

const (
	TextCodeValidationFailed = "VALIDATION_FAILED"
	TextCodeInvalidBody      = "INVALID_BODY"
	TextCodeInternal         = "INTERNAL_ERROR"
)

// DefaultClaimsContextKey is the locals key RequireToken stores claims under
const DefaultClaimsContextKey = "user"

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// MessageResponse is the body of requests that only acknowledge an action
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorStatus returns the HTTP status for err
func ErrorStatus(err error) int {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return http.StatusInternalServerError
	}

	if richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}

	switch richErr.Category {
	case errors.CategoryValidation:
		return http.StatusUnprocessableEntity
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case errors.CategoryOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewJSONErrorHandler returns the boundary error handler. Rich errors keep
// their message and text code, anything else is reported as an internal
// error without details.
func NewJSONErrorHandler(logger Logger) func(router.Context, error) error {
	logger = normalizeLogger(logger)
	return func(c router.Context, err error) error {
		return writeError(c, logger, err, 0)
	}
}

func writeError(c router.Context, logger Logger, err error, status int) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithTextCode(TextCodeInternal).
			WithCode(errors.CodeInternal)
	}

	if status == 0 {
		status = ErrorStatus(richErr)
	}

	logger.Info(
		"request error",
		"error", richErr.Message,
		"category", richErr.Category,
		"text_code", richErr.TextCode,
		"status", status,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	body := ErrorResponse{
		Message: richErr.Message,
		Code:    richErr.TextCode,
	}

	if status >= http.StatusInternalServerError && richErr.Category == errors.CategoryInternal {
		body.Message = "An unexpected server error occurred"
	}

	if fields, ok := richErr.Metadata["fields"].(map[string]string); ok {
		body.Fields = fields
	}

	return c.JSON(status, body)
}

// NewValidationError converts ozzo validation errors into a rich error
// listing the failing fields
func NewValidationError(err error) *errors.Error {
	fields := map[string]string{}

	var verrs validation.Errors
	if stderrors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				fields[field] = ferr.Error()
			}
		}
	}

	return errors.New("request validation failed", errors.CategoryValidation).
		WithTextCode(TextCodeValidationFailed).
		WithCode(http.StatusUnprocessableEntity).
		WithMetadata(map[string]any{
			"fields": fields,
		})
}

func newBodyError(err error) *errors.Error {
	return errors.Wrap(err, errors.CategoryValidation, "invalid request body").
		WithTextCode(TextCodeInvalidBody).
		WithCode(http.StatusBadRequest)
}

func setCookieToken(c router.Context, name string, secure bool, val string, expires time.Time) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    val,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   secure,
		SameSite: "Lax",
	})
}

func cookieDel(c router.Context, name string, secure bool) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: "Lax",
	})
}

type claimsValidator struct {
	validator TokenValidator
}

func (v claimsValidator) Validate(token string) (jwtware.AuthClaims, error) {
	claims, err := v.validator.Validate(token)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// RequireToken rejects requests without a valid access token. Tokens are
// read from the Authorization header and then the access_token cookie.
// The validated claims are stored in locals under contextKey, or
// DefaultClaimsContextKey when empty.
func RequireToken(validator TokenValidator, contextKey string, logger Logger) router.MiddlewareFunc {
	logger = normalizeLogger(logger)
	if contextKey == "" {
		contextKey = DefaultClaimsContextKey
	}

	return jwtware.New(jwtware.Config{
		ContextKey:     contextKey,
		TokenValidator: claimsValidator{validator: validator},
		ErrorHandler: func(c router.Context, err error) error {
			var richErr *errors.Error
			switch {
			case IsTokenExpiredError(err):
				richErr = ErrTokenExpired
			case IsMalformedError(err), stderrors.Is(err, jwtware.ErrJWTMissingOrMalformed):
				richErr = ErrTokenMalformed
			default:
				richErr = errors.Wrap(err, errors.CategoryAuth, "invalid authentication token").
					WithTextCode(TextCodeTokenMalformed).
					WithCode(errors.CodeUnauthorized)
			}
			return writeError(c, logger, richErr, http.StatusUnauthorized)
		},
	})
}

// ClaimsFromContext returns the claims RequireToken stored under key
func ClaimsFromContext(c router.Context, key string) (AuthClaims, bool) {
	if key == "" {
		key = DefaultClaimsContextKey
	}
	claims, ok := c.Locals(key).(AuthClaims)
	return claims, ok && claims != nil
}
