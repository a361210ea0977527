package infra

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresMongoURI(t *testing.T) {
	t.Setenv("MONGO_URI", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without MONGO_URI")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")
	t.Setenv("ENGINE_CONCURRENCY", "")
	t.Setenv("ADAPTOR_TIMEOUT_SECONDS", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GEOIP_DB_PATH", "/var/lib/GeoLite2-Country.mmdb")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBaseURL != "http://localhost:1919/media" {
		t.Fatalf("StorageBaseURL mismatch: got %q", cfg.StorageBaseURL)
	}
	if cfg.EngineConcurrency != 4 {
		t.Fatalf("EngineConcurrency = %d, want 4", cfg.EngineConcurrency)
	}
	if cfg.AdaptorTimeout != 120*time.Second {
		t.Fatalf("AdaptorTimeout = %s", cfg.AdaptorTimeout)
	}
	if cfg.GeoIPDBPath != "/var/lib/GeoLite2-Country.mmdb" {
		t.Fatalf("GeoIPDBPath = %q", cfg.GeoIPDBPath)
	}
	if err := cfg.RequireDatabase(); err == nil {
		t.Fatal("expected RequireDatabase error")
	}
}

func TestLoadConfigEngineOverrides(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("ENGINE_CONCURRENCY", "9")
	t.Setenv("PERSIST_TIMEOUT_SECONDS", "3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.EngineConcurrency != 9 || cfg.PersistTimeout != 3*time.Second {
		t.Fatalf("engine overrides not applied: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("CORSOrigins mismatch: %#v", cfg.CORSOrigins)
	}

	t.Setenv("ENGINE_CONCURRENCY", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for zero concurrency")
	}
}
