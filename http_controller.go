package podauth

import (
	"context"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-router"
)

// AuthService is what the HTTP controller needs from a SessionMachine
type AuthService interface {
	Signup(ctx context.Context, email, password string, profile Profile) (*AuthResult, error)
	Signin(ctx context.Context, email, password string) (*AuthResult, error)
	FederatedSignin(ctx context.Context, email string, profile Profile) (*AuthResult, error)
	IssueOTP(ctx context.Context, email, name string, purpose Purpose) error
	VerifyOTP(ctx context.Context, email string, purpose Purpose, code string) error
	CreateResetSession(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, password string) error
	FindUserByEmail(ctx context.Context, email string) error
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string)
}

var _ AuthService = (*SessionMachine)(nil)

// maxPasswordLength keeps passwords within what bcrypt takes into account
const maxPasswordLength = 72

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Signup, controller.Signup).SetName("auth.signup")
	app.Post(controller.Routes.Signin, controller.Signin).SetName("auth.signin")
	app.Post(controller.Routes.Google, controller.FederatedSignin).SetName("auth.google")
	app.Post(controller.Routes.Logout, controller.Logout).SetName("auth.logout")
	app.Post(controller.Routes.Refresh, controller.Refresh).SetName("auth.refresh")

	app.Get(controller.Routes.GenerateOTP, controller.GenerateOTP).SetName("auth.otp.generate")
	app.Get(controller.Routes.VerifyOTP, controller.VerifyOTP).SetName("auth.otp.verify")

	app.Get(controller.Routes.CreateResetSession, controller.CreateResetSession).
		SetName("auth.reset-session.create")
	app.Get(controller.Routes.FindByEmail, controller.FindByEmail).SetName("auth.find-by-email")
	app.Put(controller.Routes.ResetPassword, controller.ResetPassword).SetName("auth.password.reset")
}

type AuthControllerRoutes struct {
	Signup             string
	Signin             string
	Google             string
	Logout             string
	Refresh            string
	GenerateOTP        string
	VerifyOTP          string
	CreateResetSession string
	FindByEmail        string
	ResetPassword      string
}

// DefaultAuthRoutes returns the routes under prefix
func DefaultAuthRoutes(prefix string) *AuthControllerRoutes {
	prefix = strings.TrimSuffix(prefix, "/")
	return &AuthControllerRoutes{
		Signup:             prefix + "/signup",
		Signin:             prefix + "/signin",
		Google:             prefix + "/google",
		Logout:             prefix + "/logout",
		Refresh:            prefix + "/refresh",
		GenerateOTP:        prefix + "/generateotp",
		VerifyOTP:          prefix + "/verifyotp",
		CreateResetSession: prefix + "/createResetSession",
		FindByEmail:        prefix + "/findbyemail",
		ResetPassword:      prefix + "/forgetpassword",
	}
}

type AuthController struct {
	Logger       Logger
	Service      AuthService
	Routes       *AuthControllerRoutes
	CookieName   string
	CookieSecure bool
	ErrorHandler func(router.Context, error) error
}

type AuthControllerOption func(*AuthController) *AuthController

// WithAuthService sets the service handling requests
func WithAuthService(s AuthService) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Service = s
		return ac
	}
}

// WithControllerLogger sets the controller logger
func WithControllerLogger(l Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Logger = normalizeLogger(l)
		return ac
	}
}

// WithAuthRoutePrefix mounts the routes under prefix
func WithAuthRoutePrefix(prefix string) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Routes = DefaultAuthRoutes(prefix)
		return ac
	}
}

// WithCookieSecure toggles the Secure flag of the access token cookie.
// Local development over plain HTTP needs it off.
func WithCookieSecure(secure bool) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.CookieSecure = secure
		return ac
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		Routes:       DefaultAuthRoutes("/api/auth"),
		CookieName:   "access_token",
		CookieSecure: true,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Service == nil {
		panic("Missing AuthService in auth controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = NewJSONErrorHandler(c.Logger)
	}

	return c
}

// AuthResponse is returned by the endpoints that authenticate a user
type AuthResponse struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         *User     `json:"user"`
}

// PendingSignupResponse is returned by signup while the email waits for
// its verification code
type PendingSignupResponse struct {
	Message string `json:"message"`
	User    *User  `json:"user"`
}

// TokenResponse is returned by refresh
type TokenResponse struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// SignupRequest payload
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Img      string `json:"img"`
}

// Validate checks the request fields the core does not. Email format and
// empty passwords are left to the SessionMachine so the error codes stay
// the same for every caller.
func (r SignupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Length(0, maxPasswordLength)),
		validation.Field(&r.Name, validation.Length(0, 200)),
		validation.Field(&r.Img, validation.Length(0, 2048), is.URL),
	)
}

func (a *AuthController) Signup(ctx router.Context) error {
	payload := new(SignupRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, newBodyError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, NewValidationError(err))
	}

	res, err := a.Service.Signup(ctx.Context(), payload.Email, payload.Password, Profile{
		Name: payload.Name,
		Img:  payload.Img,
	})
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if res.Pending() {
		return ctx.JSON(http.StatusAccepted, PendingSignupResponse{
			Message: "OTP sent",
			User:    res.User,
		})
	}

	return a.authenticated(ctx, res)
}

// SigninRequest payload
type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r SigninRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Length(0, maxPasswordLength)),
	)
}

func (a *AuthController) Signin(ctx router.Context) error {
	payload := new(SigninRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, newBodyError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, NewValidationError(err))
	}

	res, err := a.Service.Signin(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return a.authenticated(ctx, res)
}

// FederatedSigninRequest carries an assertion already verified by the
// identity provider
type FederatedSigninRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Img   string `json:"img"`
}

func (r FederatedSigninRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(0, 200)),
		validation.Field(&r.Img, validation.Length(0, 2048), is.URL),
	)
}

func (a *AuthController) FederatedSignin(ctx router.Context) error {
	payload := new(FederatedSigninRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, newBodyError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, NewValidationError(err))
	}

	res, err := a.Service.FederatedSignin(ctx.Context(), payload.Email, Profile{
		Name: payload.Name,
		Img:  payload.Img,
	})
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return a.authenticated(ctx, res)
}

// RefreshRequest payload
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// Logout clears the access token cookie and revokes the refresh token
// when the body carries one. It always succeeds.
func (a *AuthController) Logout(ctx router.Context) error {
	payload := new(RefreshRequest)
	if err := ctx.Bind(payload); err == nil && payload.RefreshToken != "" {
		a.Service.Logout(ctx.Context(), payload.RefreshToken)
	}

	cookieDel(ctx, a.CookieName, a.CookieSecure)

	return ctx.JSON(router.StatusOK, MessageResponse{Message: "Logged out"})
}

func (a *AuthController) Refresh(ctx router.Context) error {
	payload := new(RefreshRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, newBodyError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, NewValidationError(err))
	}

	pair, err := a.Service.Refresh(ctx.Context(), payload.RefreshToken)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	setCookieToken(ctx, a.CookieName, a.CookieSecure, pair.AccessToken, pair.ExpiresAt)

	return ctx.JSON(router.StatusOK, TokenResponse{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	})
}

// GenerateOTP handles GET ?email&name&reason. reason=FORGOTPASSWORD asks
// for a password reset code.
func (a *AuthController) GenerateOTP(ctx router.Context) error {
	purpose := PurposeFromReason(ctx.Query("reason"))

	if err := a.Service.IssueOTP(ctx.Context(), ctx.Query("email"), ctx.Query("name"), purpose); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, MessageResponse{Message: "OTP sent"})
}

// VerifyOTP handles GET ?email&code&reason
func (a *AuthController) VerifyOTP(ctx router.Context) error {
	purpose := PurposeFromReason(ctx.Query("reason"))

	if err := a.Service.VerifyOTP(ctx.Context(), ctx.Query("email"), purpose, ctx.Query("code")); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, MessageResponse{Message: "OTP verified"})
}

func (a *AuthController) CreateResetSession(ctx router.Context) error {
	if err := a.Service.CreateResetSession(ctx.Context(), ctx.Query("email")); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, MessageResponse{Message: "Access granted"})
}

func (a *AuthController) FindByEmail(ctx router.Context) error {
	err := a.Service.FindUserByEmail(ctx.Context(), ctx.Query("email"))
	if HasTextCode(err, TextCodeUserNotFound) {
		return ctx.JSON(http.StatusNotFound, ErrorResponse{
			Message: "User not found",
			Code:    TextCodeUserNotFound,
		})
	}
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, MessageResponse{Message: "User found"})
}

// ResetPasswordRequest payload
type ResetPasswordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Length(0, maxPasswordLength)),
	)
}

// ResetPassword answers StatusSessionExpired when there is no open reset
// session for the email
func (a *AuthController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, newBodyError(err))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, NewValidationError(err))
	}

	err := a.Service.ResetPassword(ctx.Context(), payload.Email, payload.Password)
	if HasTextCode(err, TextCodeSessionExpired) {
		return writeError(ctx, a.Logger, err, StatusSessionExpired)
	}
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, MessageResponse{Message: "Password reset successful"})
}

func (a *AuthController) authenticated(ctx router.Context, res *AuthResult) error {
	setCookieToken(ctx, a.CookieName, a.CookieSecure, res.Tokens.AccessToken, res.Tokens.ExpiresAt)

	return ctx.JSON(router.StatusOK, AuthResponse{
		Token:        res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		ExpiresAt:    res.Tokens.ExpiresAt,
		User:         res.User,
	})
}
