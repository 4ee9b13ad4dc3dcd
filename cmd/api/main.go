package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/IlyasAtabaev731/credx-wallet/internal/api"
	"github.com/IlyasAtabaev731/credx-wallet/internal/config"
	"github.com/IlyasAtabaev731/credx-wallet/internal/lib/metrics"
	"github.com/IlyasAtabaev731/credx-wallet/internal/services/auth"
	"github.com/IlyasAtabaev731/credx-wallet/internal/services/cards"
	"github.com/IlyasAtabaev731/credx-wallet/internal/services/wallet"
	"github.com/IlyasAtabaev731/credx-wallet/internal/storage/postgres"

	_ "github.com/lib/pq"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting application",
		slog.String("env", cfg.Env),
		slog.String("host", cfg.ApiHost),
		slog.Int("port", cfg.ApiPort),
	)

	storage, err := postgres.New(cfg.Postgres.URL(), wallet.Defaults(cfg.Wallet))
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	authService := auth.New(log, storage, cfg.Auth)
	cardService := cards.New(log, storage)
	walletService := wallet.New(log, storage, cfg.Wallet, metrics.Ledger{})

	seedUser(log, authService, cfg.SeedUser)

	if err := walletService.Warm(context.Background()); err != nil {
		log.Warn("Failed to warm wallet cache", "error", err)
	}

	apiServer := api.New(cfg, log, authService, cardService, walletService, storage)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		apiServer.MustStart()
	}()

	<-sigChan
	log.Info("Got signal to shutdown server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Stop(ctx); err != nil {
		log.Error("Stopping server error", "error", err)
	}

	if err := storage.Stop(); err != nil {
		log.Error("Closing database error", "error", err)
	}
}

// seedUser creates the demo account from config if it is missing.
func seedUser(log *slog.Logger, authService *auth.Auth, seed config.SeedUser) {
	if seed.Username == "" {
		return
	}

	_, _, err := authService.Register(context.Background(), seed.Username, seed.Email, seed.Password)
	switch {
	case err == nil:
		log.Info("Seed user created", slog.String("username", seed.Username))
	case errors.Is(err, auth.ErrUserExists):
		log.Debug("Seed user already exists", slog.String("username", seed.Username))
	default:
		log.Error("Failed to create seed user", "error", err)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
