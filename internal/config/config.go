package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL        string
	HTTPAddress        string
	PollInterval       int // seconds
	BatchSize          int
	MaxRetries         int
	ShutdownTimeout    int // seconds
	TokenEncryptionKey string

	StravaClientID     string
	StravaClientSecret string
	StravaVerifyToken  string
	StravaCallbackURL  string
	StravaAPIBaseURL   string
	StravaTokenURL     string
	StravaReadLimit15  int
	StravaReadLimitDay int

	AdminJWTSecret string
	AdminJWTIssuer string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	encryptionKey := os.Getenv("TOKEN_ENCRYPTION_KEY")
	if encryptionKey == "" {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY is required")
	}

	stravaClientID := os.Getenv("STRAVA_CLIENT_ID")
	stravaClientSecret := os.Getenv("STRAVA_CLIENT_SECRET")
	if stravaClientID == "" || stravaClientSecret == "" {
		log.Warn().Msg("STRAVA_CLIENT_ID or STRAVA_CLIENT_SECRET not set, token refresh and subscription management will not work")
	}

	verifyToken := os.Getenv("STRAVA_VERIFY_TOKEN")
	if verifyToken == "" {
		log.Warn().Msg("STRAVA_VERIFY_TOKEN not set, webhook subscription validation will be rejected")
	}

	adminSecret := os.Getenv("ADMIN_JWT_SECRET")
	if adminSecret == "" {
		log.Warn().Msg("ADMIN_JWT_SECRET not set, admin endpoints are disabled")
	}

	return &Config{
		DatabaseURL:        dbURL,
		HTTPAddress:        getEnv("HTTP_ADDRESS", ":8080"),
		PollInterval:       getIntEnv("POLL_INTERVAL", 30), // poll every 30 seconds
		BatchSize:          getIntEnv("BATCH_SIZE", 10),
		MaxRetries:         getIntEnv("MAX_RETRIES", 3),
		ShutdownTimeout:    getIntEnv("SHUTDOWN_TIMEOUT", 30),
		TokenEncryptionKey: encryptionKey,
		StravaClientID:     stravaClientID,
		StravaClientSecret: stravaClientSecret,
		StravaVerifyToken:  verifyToken,
		StravaCallbackURL:  os.Getenv("STRAVA_CALLBACK_URL"),
		StravaAPIBaseURL:   getEnv("STRAVA_API_BASE_URL", "https://www.strava.com/api/v3"),
		StravaTokenURL:     getEnv("STRAVA_TOKEN_URL", "https://www.strava.com/oauth/token"),
		StravaReadLimit15:  getIntEnv("STRAVA_READ_LIMIT_15MIN", 100),
		StravaReadLimitDay: getIntEnv("STRAVA_READ_LIMIT_DAILY", 1000),
		AdminJWTSecret:     adminSecret,
		AdminJWTIssuer:     getEnv("ADMIN_JWT_ISSUER", "fitsync"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
