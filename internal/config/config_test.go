package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_TTL_SECONDS", "0")
	t.Setenv("REFERENCE_TIMEZONE", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
	if cfg.CacheTTL() != 60*time.Second {
		t.Fatalf("expected ttl fallback of 60s, got %s", cfg.CacheTTL())
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC location, got %v (%v)", loc, err)
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error for malformed integer")
	}
}

func TestLocationRejectsUnknownZone(t *testing.T) {
	cfg := Config{ReferenceTimezone: "Mars/Olympus"}
	if _, err := cfg.Location(); err == nil {
		t.Fatalf("expected unknown timezone to fail")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SERVICE_NAME=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("SERVICE_NAME", "")
	os.Unsetenv("SERVICE_NAME")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "from-dotenv" {
		t.Fatalf("expected service name from .env, got %q", cfg.ServiceName)
	}
}
