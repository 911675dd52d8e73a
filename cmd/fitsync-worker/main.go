package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/vipul43/fitsync-worker/internal/api"
	"github.com/vipul43/fitsync-worker/internal/config"
	"github.com/vipul43/fitsync-worker/internal/database"
	"github.com/vipul43/fitsync-worker/internal/logging"
	"github.com/vipul43/fitsync-worker/internal/ratelimit"
	"github.com/vipul43/fitsync-worker/internal/repository"
	"github.com/vipul43/fitsync-worker/internal/service"
	"github.com/vipul43/fitsync-worker/internal/strava"
	"github.com/vipul43/fitsync-worker/internal/vault"
	"github.com/vipul43/fitsync-worker/internal/watcher"
)

func main() {
	logging.Init(logging.Config{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()
	log.Info().Msg("database connected")

	if err := database.RunMigrations(db); err != nil {
		return err
	}
	log.Info().Msg("migrations completed")

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Repositories
	eventRepo := repository.NewWebhookEventRepository(sqlDB)
	connectionRepo := repository.NewConnectionRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	autoSyncRepo := repository.NewAutoSyncRepository(db)

	tokenVault, err := vault.New(cfg.TokenEncryptionKey, "")
	if err != nil {
		return fmt.Errorf("failed to initialize token vault: %w", err)
	}

	limiter := ratelimit.New(cfg.StravaReadLimit15, cfg.StravaReadLimitDay)
	stravaClient := strava.NewClient(strava.Config{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		APIBaseURL:   cfg.StravaAPIBaseURL,
		TokenURL:     cfg.StravaTokenURL,
	}, limiter)

	processor := service.NewEventProcessor(
		eventRepo,
		connectionRepo,
		activityRepo,
		autoSyncRepo,
		stravaClient,
		limiter,
		tokenVault,
		service.EventProcessorConfig{BatchSize: cfg.BatchSize, MaxRetries: cfg.MaxRetries},
	)
	receiver := service.NewWebhookReceiver(eventRepo, cfg.StravaVerifyToken)

	w := watcher.New(processor, time.Duration(cfg.PollInterval)*time.Second)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Dependencies{
		Receiver:      receiver,
		Subscriptions: stravaClient,
		Events:        eventRepo,
		HealthCheck:   sqlDB.PingContext,
		Auth:          api.AuthConfig{Secret: cfg.AdminJWTSecret, Issuer: cfg.AdminJWTIssuer},
		CallbackURL:   cfg.StravaCallbackURL,
		VerifyToken:   cfg.StravaVerifyToken,
		MaxRetries:    cfg.MaxRetries,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	watcherDone := make(chan error, 1)
	go func() {
		watcherDone <- w.Start(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.HTTPAddress).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	case err := <-watcherDone:
		runErr = fmt.Errorf("watcher stopped: %w", err)
		watcherDone <- nil
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}

	// The in-flight batch finishes its current event before the watcher returns
	select {
	case <-shutdownCtx.Done():
		log.Warn().Msg("shutdown timeout exceeded")
	case err := <-watcherDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("watcher error")
		}
	}

	log.Info().Msg("application stopped")
	return runErr
}
