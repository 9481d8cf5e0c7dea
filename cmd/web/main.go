package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdamBeresnev/bracket-battles/internal/broadcast"
	"github.com/AdamBeresnev/bracket-battles/internal/config"
	"github.com/AdamBeresnev/bracket-battles/internal/db"
	"github.com/AdamBeresnev/bracket-battles/internal/scheduler"
	"github.com/AdamBeresnev/bracket-battles/internal/service"
	"github.com/AdamBeresnev/bracket-battles/internal/storage"
	"github.com/AdamBeresnev/bracket-battles/internal/store"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/jonboulle/clockwork"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.InitDB(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.RunMigrations(database.DB, cfg.DatabaseDriver, cfg.MigrationsPath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	clock := clockwork.NewRealClock()

	pubSub := broadcast.NewPubSub(logger)
	defer pubSub.Close()
	broadcaster := broadcast.NewBroadcaster(pubSub, logger)

	competitionStore := store.NewCompetitionStore(database)
	voteStore := store.NewVoteStore(database)
	userStore := store.NewUserStore(database)

	var uploader service.ImageUploader
	if cfg.R2.Enabled() {
		r2, err := storage.NewR2Uploader(ctx, cfg.R2)
		if err != nil {
			return err
		}
		uploader = r2
		logger.Info("Image uploads enabled", "bucket", cfg.R2.BucketName)
	} else {
		logger.Warn("R2 storage not configured, image uploads are disabled")
	}

	brackets := service.NewBracketService(competitionStore, clock)
	schedules := service.NewScheduleService(database, competitionStore, userStore)
	competitions := service.NewCompetitionService(database, competitionStore, userStore, brackets, broadcaster, clock, logger,
		service.WithRoundDuration(cfg.RoundDuration))

	app := &application{
		logger:       logger,
		competitions: competitions,
		matches:      service.NewMatchService(database, competitionStore, voteStore, userStore, brackets, competitions, broadcaster, clock, logger),
		votes:        service.NewVoteService(database, competitionStore, voteStore, userStore, schedules, broadcaster, clock, logger),
		entries:      service.NewEntryService(database, competitionStore, uploader, clock, logger),
		schedules:    schedules,
		users:        service.NewUserService(userStore, competitionStore),
		userStore:    userStore,
		adminToken:   cfg.AdminToken,
		stream:       broadcast.NewStream(pubSub, checkOrigin(cfg.AllowedOrigins), logger),
	}

	if _, err := app.users.EnsureAdminUser(ctx); err != nil {
		return fmt.Errorf("failed to ensure admin user: %w", err)
	}
	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set, administrator sign in is disabled")
	}

	sweeper, err := scheduler.NewSweeper(competitions, cfg.SweepInterval, clock, logger)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer func() {
		if err := sweeper.Shutdown(); err != nil {
			logger.Error("Failed to stop entry sweeper", "error", err)
		}
	}()

	app.sessionManager = scs.New()
	app.sessionManager.Lifetime = cfg.SessionLifetime
	app.sessionManager.Cookie.HttpOnly = true
	app.sessionManager.Cookie.SameSite = http.SameSiteLaxMode
	if cfg.DatabaseDriver == db.DriverSQLite {
		app.sessionManager.Store = sqlite3store.New(database.DB)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      app.routes(cfg.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "addr", srv.Addr, "driver", cfg.DatabaseDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
