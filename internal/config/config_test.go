package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("LEADBOARD_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.SearchCacheTTL != 30*time.Second {
		t.Fatalf("expected 30s cache ttl, got %s", cfg.SearchCacheTTL)
	}
	if cfg.RedisURL != "" {
		t.Fatalf("expected redis disabled by default, got %q", cfg.RedisURL)
	}
	if cfg.ProspectSource != "research_queue" {
		t.Fatalf("unexpected prospect source %q", cfg.ProspectSource)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("LEADBOARD_SEARCH_CACHE_TTL_SECONDS", "5")
	t.Setenv("LEADBOARD_RECONCILE_SCHEDULE", "  ")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("expected env addr, got %q", cfg.Addr)
	}
	if cfg.SearchCacheTTL != 5*time.Second {
		t.Fatalf("expected 5s ttl, got %s", cfg.SearchCacheTTL)
	}
	if cfg.ReconcileSchedule != "" {
		t.Fatalf("expected blank schedule to disable sweep, got %q", cfg.ReconcileSchedule)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Log.Level)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leadboard.yaml")
	if err := os.WriteFile(path, []byte("MEILI_URL: http://meili:7700\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LEADBOARD_CONFIG", path)
	t.Setenv("MEILI_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MeiliURL != "http://meili:7700" {
		t.Fatalf("expected file value, got %q", cfg.MeiliURL)
	}
}
