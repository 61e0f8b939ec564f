package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.MismatchTop != 20 {
		t.Fatalf("expected default mismatch_top 20, got %d", cfg.MismatchTop)
	}
	if cfg.BackendTimeout != 10*time.Second {
		t.Fatalf("expected default backend timeout 10s, got %s", cfg.BackendTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAIZEN_PORT", "9191")
	t.Setenv("KAIZEN_BACKEND_TIMEOUT", "2s")
	t.Setenv("KAIZEN_MISMATCH_TOP", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9191 {
		t.Fatalf("expected port 9191, got %d", cfg.Port)
	}
	if cfg.BackendTimeout != 2*time.Second {
		t.Fatalf("expected backend timeout 2s, got %s", cfg.BackendTimeout)
	}
	if cfg.MismatchTop != 5 {
		t.Fatalf("expected mismatch_top 5, got %d", cfg.MismatchTop)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	if v := envInt("TEST_INT_BAD", 7); v != 7 {
		t.Fatalf("expected fallback 7, got %d", v)
	}
}

func TestEnvDurationInvalidFallsBack(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "soon")
	if v := envDuration("TEST_DUR_BAD", time.Minute); v != time.Minute {
		t.Fatalf("expected fallback 1m, got %s", v)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := cfg
	bad.DatabaseURL = ""
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for empty DATABASE_URL")
	}

	bad = cfg
	bad.MismatchTop = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero mismatch_top")
	}

	bad = cfg
	bad.BackendTimeout = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero backend timeout")
	}
}
