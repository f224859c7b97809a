package podauth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-router"
)

// UploadTarget is a presigned upload the client PUTs the file to
type UploadTarget struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UploadPresigner issues upload URLs scoped to a user
type UploadPresigner interface {
	PresignUpload(ctx context.Context, userID, filename, contentType string) (*UploadTarget, error)
}

// MediaController hands out upload URLs for podcast media and thumbnails
type MediaController struct {
	Logger       Logger
	Presigner    UploadPresigner
	Validator    TokenValidator
	ContextKey   string
	UploadRoute  string
	ErrorHandler func(router.Context, error) error
}

type MediaControllerOption func(*MediaController) *MediaController

// WithMediaLogger sets the controller logger
func WithMediaLogger(l Logger) MediaControllerOption {
	return func(mc *MediaController) *MediaController {
		mc.Logger = normalizeLogger(l)
		return mc
	}
}

// WithUploadRoute overrides the upload URL route
func WithUploadRoute(route string) MediaControllerOption {
	return func(mc *MediaController) *MediaController {
		mc.UploadRoute = route
		return mc
	}
}

func NewMediaController(presigner UploadPresigner, validator TokenValidator, opts ...MediaControllerOption) *MediaController {
	c := &MediaController{
		Logger:      defLogger{},
		Presigner:   presigner,
		Validator:   validator,
		ContextKey:  DefaultClaimsContextKey,
		UploadRoute: "/api/media/upload-url",
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Presigner == nil {
		panic("Missing UploadPresigner in media controller...")
	}

	if c.Validator == nil {
		panic("Missing TokenValidator in media controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = NewJSONErrorHandler(c.Logger)
	}

	return c
}

// RegisterMediaRoutes mounts the upload URL endpoint behind RequireToken
func RegisterMediaRoutes[T any](app router.Router[T], presigner UploadPresigner, validator TokenValidator, opts ...MediaControllerOption) {
	controller := NewMediaController(presigner, validator, opts...)

	protected := RequireToken(controller.Validator, controller.ContextKey, controller.Logger)

	app.Post(controller.UploadRoute, protected(controller.UploadURL)).SetName("media.upload-url")
}

// UploadURLRequest payload
type UploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

func (r UploadURLRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Filename, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.ContentType, validation.Required, validation.Length(3, 127)),
	)
}

func (m *MediaController) UploadURL(ctx router.Context) error {
	claims, ok := ClaimsFromContext(ctx, m.ContextKey)
	if !ok || claims.UserID() == "" {
		return writeError(ctx, m.Logger, ErrTokenMalformed, router.StatusUnauthorized)
	}

	payload := new(UploadURLRequest)
	if err := ctx.Bind(payload); err != nil {
		return m.ErrorHandler(ctx, newBodyError(err))
	}

	if err := payload.Validate(); err != nil {
		return m.ErrorHandler(ctx, NewValidationError(err))
	}

	target, err := m.Presigner.PresignUpload(ctx.Context(), claims.UserID(), payload.Filename, payload.ContentType)
	if err != nil {
		return m.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, target)
}
