package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-podauth/internal/config"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		panic(err)
	}

	app := &App{
		config: cfg,
		logger: newSlogLogger(cfg),
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, step := range []func(context.Context, *App) error{
		WithPersistence,
		WithChallengeStore,
		WithSessionMachine,
		WithHTTPServer,
	} {
		if err := step(ctx, app); err != nil {
			app.logger.Error("startup failed", "error", err)
			return
		}
	}

	go func() {
		if err := app.srv.Serve(cfg.ServerAddress); err != nil {
			app.logger.Error("server stopped", "error", err)
		}
	}()

	app.logger.Info("podauth listening", "address", cfg.ServerAddress)

	sig := WaitExitSignal()
	app.logger.Info("shutting down", "signal", sig.String())
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
