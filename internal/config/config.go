package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-podauth"
	"github.com/goliatone/go-podauth/storage"
	"github.com/joho/godotenv"
)

// Config is the podauth server configuration. Every field is read from
// a PODAUTH_ prefixed environment variable.
type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:":8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"text"`
	CookieSecure  bool   `env:"COOKIE_SECURE" envDefault:"true"`

	// DatabaseDSN selects the driver by scheme: postgres:// or
	// postgresql:// use pgx, anything else is treated as a sqlite DSN.
	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"file:podauth.db?cache=shared"`

	SigningKey          string        `env:"SIGNING_KEY,required"`
	TokenExpiration     time.Duration `env:"TOKEN_EXPIRATION" envDefault:"15m"`
	RefreshExpiration   time.Duration `env:"REFRESH_TOKEN_EXPIRATION" envDefault:"720h"`
	Issuer              string        `env:"ISSUER" envDefault:"podauth"`
	Audience            []string      `env:"AUDIENCE" envSeparator:"," envDefault:"podstream"`
	OTPLength           int           `env:"OTP_LENGTH" envDefault:"6"`
	OTPExpiration       time.Duration `env:"OTP_EXPIRATION" envDefault:"10m"`
	OTPMaxAttempts      int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	ResetSessionTTL     time.Duration `env:"RESET_SESSION_EXPIRATION" envDefault:"15m"`
	RequireVerification bool          `env:"REQUIRE_EMAIL_VERIFICATION" envDefault:"false"`

	// RedisURL switches the challenge store to Redis when set
	RedisURL       string        `env:"REDIS_URL"`
	RedisNamespace string        `env:"REDIS_NAMESPACE" envDefault:"podauth"`
	JanitorPeriod  time.Duration `env:"CHALLENGE_JANITOR_PERIOD" envDefault:"1m"`

	// SMTPHost switches OTP delivery from the log mailer to SMTP when set
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"465"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPTLS      bool   `env:"SMTP_IMPLICIT_TLS" envDefault:"true"`

	// S3Bucket enables the media upload endpoint when set
	S3Bucket          string        `env:"S3_BUCKET"`
	S3Region          string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3BaseEndpoint    string        `env:"S3_BASE_ENDPOINT"`
	S3AccessKeyID     string        `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string        `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool          `env:"S3_USE_PATH_STYLE" envDefault:"false"`
	S3PresignTTL      time.Duration `env:"S3_PRESIGN_TTL" envDefault:"15m"`
}

var _ podauth.Config = (*Config)(nil)

// EnvPrefix is prepended to every variable name
const EnvPrefix = "PODAUTH_"

// Load reads the optional dotenv files and parses the environment.
// Variables already set in the environment win over dotenv values.
func Load(dotenvFiles ...string) (*Config, error) {
	for _, file := range dotenvFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load dotenv file").
				WithMetadata(map[string]any{
					"file": file,
				})
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "failed to parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values env can not express with tags
func (c *Config) Validate() error {
	fields := map[string]any{}

	if len(c.SigningKey) < 32 {
		fields["signing_key"] = "must be at least 32 bytes"
	}
	if c.OTPLength < 4 || c.OTPLength > 10 {
		fields["otp_length"] = "must be between 4 and 10"
	}
	if c.OTPMaxAttempts < 1 {
		fields["otp_max_attempts"] = "must be positive"
	}
	if c.TokenExpiration <= 0 {
		fields["token_expiration"] = "must be positive"
	}

	if len(fields) > 0 {
		return errors.New("invalid configuration", errors.CategoryValidation).
			WithMetadata(fields)
	}

	return nil
}

func (c *Config) GetSigningKey() string {
	return c.SigningKey
}

func (c *Config) GetTokenExpiration() time.Duration {
	return c.TokenExpiration
}

func (c *Config) GetRefreshTokenExpiration() time.Duration {
	return c.RefreshExpiration
}

func (c *Config) GetIssuer() string {
	return c.Issuer
}

func (c *Config) GetAudience() []string {
	return c.Audience
}

func (c *Config) GetOTPLength() int {
	return c.OTPLength
}

func (c *Config) GetOTPExpiration() time.Duration {
	return c.OTPExpiration
}

func (c *Config) GetOTPMaxAttempts() int {
	return c.OTPMaxAttempts
}

func (c *Config) GetResetSessionExpiration() time.Duration {
	return c.ResetSessionTTL
}

func (c *Config) GetRequireEmailVerification() bool {
	return c.RequireVerification
}

// SMTP returns the mailer settings
func (c *Config) SMTP() podauth.SMTPConfig {
	return podauth.SMTPConfig{
		Host:        c.SMTPHost,
		Port:        c.SMTPPort,
		Username:    c.SMTPUsername,
		Password:    c.SMTPPassword,
		From:        c.SMTPFrom,
		ImplicitTLS: c.SMTPTLS,
	}
}

// S3 returns the object store settings
func (c *Config) S3() storage.S3Config {
	return storage.S3Config{
		Bucket:          c.S3Bucket,
		Region:          c.S3Region,
		BaseEndpoint:    c.S3BaseEndpoint,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
		UsePathStyle:    c.S3UsePathStyle,
		PresignTTL:      c.S3PresignTTL,
	}
}
