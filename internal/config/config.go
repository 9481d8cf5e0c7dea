package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AdamBeresnev/bracket-battles/internal/db"
	"github.com/AdamBeresnev/bracket-battles/internal/storage"
	"github.com/joho/godotenv"
)

var migrationsDirs = map[string]string{
	db.DriverSQLite:   "migrations/sqlite",
	db.DriverPostgres: "migrations/postgres",
}

type Config struct {
	DatabaseDriver  string
	DatabaseURL     string
	MigrationsPath  string
	ServerPort      int
	SessionLifetime time.Duration
	// RoundDuration of 0 leaves rounds unscheduled unless a host sets windows by hand
	RoundDuration  time.Duration
	SweepInterval  time.Duration
	AllowedOrigins []string
	// AdminToken signs a client in as the built in administrator. Empty disables admin sign in.
	AdminToken string
	R2         storage.R2Config
}

// Load reads the configuration from the environment. A .env file is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	driver := getenv("DATABASE_DRIVER", db.DriverSQLite)
	if driver != db.DriverSQLite && driver != db.DriverPostgres {
		return nil, fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", db.DriverSQLite, db.DriverPostgres, driver)
	}

	cfg := &Config{
		DatabaseDriver: driver,
		DatabaseURL:    getenv("DATABASE_URL", "bracket_battles.db"),
		MigrationsPath: getenv("MIGRATIONS_PATH", migrationsDirs[driver]),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		AdminToken:     strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),
		R2: storage.R2Config{
			AccountID:       os.Getenv("R2_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
			BucketName:      os.Getenv("R2_BUCKET_NAME"),
			PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
		},
	}

	port, err := strconv.Atoi(getenv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}
	cfg.ServerPort = port

	if cfg.SessionLifetime, err = duration("SESSION_LIFETIME", "24h"); err != nil {
		return nil, err
	}
	if cfg.RoundDuration, err = duration("ROUND_DURATION", "0"); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = duration("SWEEP_INTERVAL", "1m"); err != nil {
		return nil, err
	}
	if cfg.SessionLifetime <= 0 || cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SESSION_LIFETIME and SWEEP_INTERVAL must be positive")
	}
	if cfg.RoundDuration < 0 {
		return nil, fmt.Errorf("ROUND_DURATION must not be negative, got %s", cfg.RoundDuration)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func duration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(getenv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
