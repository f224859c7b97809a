package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-podauth"
	"github.com/goliatone/go-podauth/activitymap"
	"github.com/goliatone/go-podauth/internal/config"
	"github.com/goliatone/go-podauth/storage"
	"github.com/goliatone/go-router"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// App holds the wired server dependencies
type App struct {
	config  *config.Config
	logger  *slog.Logger
	db      *bun.DB
	redis   redis.UniversalClient
	store   podauth.ChallengeStore
	tokens  *podauth.TokenService
	machine *podauth.SessionMachine
	srv     router.Server[*fiber.App]
	closers []func() error
}

func (a *App) GetLogger(name string) podauth.Logger {
	return podauth.NewSlogLogger(a.logger.With("component", name))
}

// Close releases every resource opened while wiring, last opened first
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func newSlogLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// OpenDB opens dsn with pgx for postgres URLs and sqlite otherwise
func OpenDB(dsn string) (*bun.DB, error) {
	if isPostgresDSN(dsn) {
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open postgres")
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open sqlite")
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := OpenDB(app.config.DatabaseDSN)
	if err != nil {
		return err
	}
	app.closers = append(app.closers, db.Close)

	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "database is not reachable")
	}

	results, err := podauth.Migrate(ctx, db)
	if err != nil {
		return err
	}
	for _, res := range results {
		app.logger.Info("migration applied", "source", res.Source.Path, "duration", res.Duration)
	}

	app.db = db
	return nil
}

func WithChallengeStore(ctx context.Context, app *App) error {
	opts := podauth.ChallengeStoreOptions{
		MaxAttempts: app.config.GetOTPMaxAttempts(),
		ResetTTL:    app.config.GetResetSessionExpiration(),
	}

	if app.config.RedisURL == "" {
		store := podauth.NewMemoryChallengeStore(opts,
			podauth.WithMemoryStoreLogger(app.GetLogger("challenges")),
		)
		store.StartJanitor(ctx, app.config.JanitorPeriod)
		app.store = store
		return nil
	}

	redisOpts, err := redis.ParseURL(app.config.RedisURL)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid redis url")
	}

	client := redis.NewClient(redisOpts)
	app.closers = append(app.closers, client.Close)

	if err := client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "redis is not reachable")
	}

	app.redis = client
	app.store = podauth.NewRedisChallengeStore(client, app.config.RedisNamespace, opts)
	return nil
}

func newNotifier(app *App) (podauth.Notifier, error) {
	renderer, err := podauth.NewTemplateRenderer("PODSTREAM")
	if err != nil {
		return nil, err
	}

	var mailer podauth.Mailer = podauth.NewLogMailer(app.GetLogger("mailer"))
	if app.config.SMTPHost != "" {
		mailer = podauth.NewSMTPMailer(app.config.SMTP())
	} else {
		app.logger.Warn("SMTP is not configured, OTP emails are only logged")
	}

	return podauth.NewEmailNotifier(renderer, mailer), nil
}

func activityLogger(logger podauth.Logger) podauth.ActivitySink {
	return activitymap.Sink(func(ctx context.Context, n activitymap.Normalized) error {
		logger.Info("activity",
			"verb", n.Verb,
			"actor_id", n.ActorID,
			"metadata", n.Metadata,
		)
		return nil
	}, activitymap.WithDefaultChannel("podstream"))
}

func WithSessionMachine(ctx context.Context, app *App) error {
	repo := podauth.NewRepositoryManager(app.db)
	if err := repo.Validate(); err != nil {
		return err
	}

	app.tokens = podauth.NewTokenService(app.config,
		podauth.WithRefreshTokenStore(repo.RefreshTokens()),
		podauth.WithTokenLogger(app.GetLogger("tokens")),
	)

	notifier, err := newNotifier(app)
	if err != nil {
		return err
	}

	app.machine = podauth.NewSessionMachine(repo, app.tokens, app.store, notifier, app.config,
		podauth.WithLogger(app.GetLogger("session")),
		podauth.WithActivitySink(activityLogger(app.GetLogger("activity"))),
	)

	go purgeRefreshTokens(ctx, repo.RefreshTokens(), app.GetLogger("tokens"), time.Hour)

	return nil
}

func purgeRefreshTokens(ctx context.Context, tokens podauth.RefreshTokens, logger podauth.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := tokens.DeleteExpired(ctx, now.UTC())
			if err != nil {
				logger.Warn("refresh token purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("refresh tokens purged", "removed", n)
			}
		}
	}
}

func WithHTTPServer(ctx context.Context, app *App) error {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:           "podauth",
			UnescapePath:      true,
			EnablePrintRoutes: false,
			StrictRouting:     false,
		}))
	})

	podauth.RegisterAuthRoutes(srv.Router(),
		podauth.WithAuthService(app.machine),
		podauth.WithControllerLogger(app.GetLogger("http")),
		podauth.WithCookieSecure(app.config.CookieSecure),
	)

	if app.config.S3Bucket != "" {
		presigner, err := storage.NewS3Presigner(ctx, app.config.S3())
		if err != nil {
			return err
		}
		podauth.RegisterMediaRoutes(srv.Router(), presigner, app.tokens,
			podauth.WithMediaLogger(app.GetLogger("media")),
		)
	} else {
		app.logger.Warn("S3 bucket is not configured, media uploads are disabled")
	}

	app.srv = srv
	return nil
}
