package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the dashboard client
type Config struct {
	APIBaseURL     string
	WebSocketURL   string
	RequestTimeout time.Duration
	Environment    string
}

// Load loads configuration from environment variables
// It attempts to load from .env file if not in production
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Load .env file if not in production
	// We don't return error here because in production .env might not exist
	// and we rely on system environment variables
	if env != "production" {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: .env file not found or couldn't be loaded: %v", err)
		}
	}

	cfg := &Config{
		Environment:    env,
		APIBaseURL:     os.Getenv("GUESTBOOK_API_URL"),
		WebSocketURL:   os.Getenv("GUESTBOOK_WS_URL"),
		RequestTimeout: 10 * time.Second,
	}

	// Defaults match a backend running locally
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:3001/api"
	}
	if cfg.WebSocketURL == "" {
		cfg.WebSocketURL = "ws://localhost:3001/ws"
	}

	if s := os.Getenv("GUESTBOOK_REQUEST_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			cfg.RequestTimeout = d
		} else {
			log.Printf("Warning: invalid GUESTBOOK_REQUEST_TIMEOUT %q, using default", s)
		}
	}

	return cfg, nil
}
