package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadRequiresSessionSecret(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SESSION_SECRET", "")

	cfg, err := Load()
	if !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	if cfg.DatabaseURL == "" {
		t.Fatal("defaults must still be applied without a secret")
	}
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SESSION_SECRET", "secret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PUBLIC_URL", "")
	t.Setenv("SIGNUP_REDIRECT_DELAY_MS", "")
	t.Setenv("SESSION_TTL_HOURS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "todolist.db" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.PublicURL != "http://localhost:8080" {
		t.Errorf("PublicURL = %q", cfg.PublicURL)
	}
	if cfg.SignUpRedirectDelay != 3*time.Second {
		t.Errorf("SignUpRedirectDelay = %v", cfg.SignUpRedirectDelay)
	}
	if cfg.SessionTTL != 30*24*time.Hour {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.GoogleEnabled() {
		t.Error("expected google sign-in to be disabled")
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("HTTP_ADDR", "")
	os.Unsetenv("SESSION_SECRET")
	os.Unsetenv("HTTP_ADDR")

	content := "SESSION_SECRET=from-file\nHTTP_ADDR=127.0.0.1:9000\nSIGNUP_REDIRECT_DELAY_MS=1500\n"
	if err := os.WriteFile(filepath.Join(".", ".env"), []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("SIGNUP_REDIRECT_DELAY_MS")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SessionSecret != "from-file" {
		t.Errorf("SessionSecret = %q", cfg.SessionSecret)
	}
	if cfg.PublicURL != "http://127.0.0.1:9000" {
		t.Errorf("PublicURL = %q", cfg.PublicURL)
	}
	if cfg.SignUpRedirectDelay != 1500*time.Millisecond {
		t.Errorf("SignUpRedirectDelay = %v", cfg.SignUpRedirectDelay)
	}
	if cfg.GoogleRedirectURL() != "http://127.0.0.1:9000/auth/google/callback" {
		t.Errorf("GoogleRedirectURL = %q", cfg.GoogleRedirectURL())
	}
}
