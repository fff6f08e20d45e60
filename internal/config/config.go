package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingSecret is returned by Load when SESSION_SECRET is not set. The
// returned Config is otherwise complete.
var ErrMissingSecret = errors.New("SESSION_SECRET is required")

// Config keeps runtime settings for the web server, the bot and the scheduler.
type Config struct {
	DatabaseURL         string
	HTTPAddr            string
	PublicURL           string
	SessionSecret       string
	SessionTTL          time.Duration
	SignUpRedirectDelay time.Duration
	ClientIdleTimeout   time.Duration
	CleanupInterval     time.Duration

	TelegramToken  string
	ReportInterval time.Duration
	// ReportAt is a daily HH:MM report time; it wins over ReportInterval.
	ReportAt string

	GoogleClientID     string
	GoogleClientSecret string

	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// Load reads configuration from environment variables with sane defaults.
// Values from a .env file in the working directory are applied first; real
// environment variables win over them.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		DatabaseURL:         env("DATABASE_URL"),
		HTTPAddr:            env("HTTP_ADDR"),
		PublicURL:           strings.TrimRight(env("PUBLIC_URL"), "/"),
		SessionSecret:       env("SESSION_SECRET"),
		SessionTTL:          parseDuration(env("SESSION_TTL_HOURS"), time.Hour),
		SignUpRedirectDelay: parseDuration(env("SIGNUP_REDIRECT_DELAY_MS"), time.Millisecond),
		ClientIdleTimeout:   parseDuration(env("CLIENT_IDLE_TIMEOUT_MINUTES"), time.Minute),
		CleanupInterval:     parseDuration(env("CLEANUP_INTERVAL_MINUTES"), time.Minute),
		TelegramToken:       env("TELEGRAM_TOKEN"),
		ReportInterval:      parseDuration(env("REPORT_INTERVAL_HOURS"), time.Hour),
		ReportAt:            env("REPORT_AT"),
		GoogleClientID:      env("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:  env("GOOGLE_CLIENT_SECRET"),
		SMTPAddr:            env("SMTP_ADDR"),
		SMTPUsername:        env("SMTP_USERNAME"),
		SMTPPassword:        env("SMTP_PASSWORD"),
		SMTPFrom:            env("SMTP_FROM"),
	}
	cfg.applyDefaults()

	if cfg.SessionSecret == "" {
		return cfg, ErrMissingSecret
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = "todolist.db"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.PublicURL == "" {
		c.PublicURL = "http://" + c.HTTPAddr
		if strings.HasPrefix(c.HTTPAddr, ":") {
			c.PublicURL = "http://localhost" + c.HTTPAddr
		}
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 30 * 24 * time.Hour
	}
	if c.SignUpRedirectDelay == 0 {
		c.SignUpRedirectDelay = 3 * time.Second
	}
	if c.ClientIdleTimeout == 0 {
		c.ClientIdleTimeout = 2 * time.Hour
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = time.Hour
	}
}

// GoogleEnabled reports whether federated sign-in with Google is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// GoogleRedirectURL is the OAuth2 callback registered with Google.
func (c Config) GoogleRedirectURL() string {
	return c.PublicURL + "/auth/google/callback"
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// parseDuration reads a positive integer count of unit. Anything else yields 0.
func parseDuration(raw string, unit time.Duration) time.Duration {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * unit
}
