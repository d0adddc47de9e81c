package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "controlplane.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.HTTPListenAddr != ":8080" {
		t.Errorf("expected default HTTP listen addr :8080, got %s", cfg.HTTPListenAddr)
	}
	if cfg.Store.Backend != "mem" {
		t.Errorf("expected default store backend mem, got %s", cfg.Store.Backend)
	}
	if cfg.Channel.Backend != "mem" {
		t.Errorf("expected default channel backend mem, got %s", cfg.Channel.Backend)
	}
	if cfg.Dispatcher.InactivityWindow != 5*time.Minute {
		t.Errorf("expected default inactivity window 5m, got %v", cfg.Dispatcher.InactivityWindow)
	}
}

func TestLoad_S3Store(t *testing.T) {
	path := writeConfig(t, `
log_level: "debug"
store:
  backend: "s3"
  s3_bucket: "my-catalog-bucket"
  s3_prefix: "prod/"
  s3_region: "us-west-2"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Backend != "s3" {
		t.Errorf("expected store backend s3, got %s", cfg.Store.Backend)
	}
	if cfg.Store.S3Bucket != "my-catalog-bucket" {
		t.Errorf("expected bucket my-catalog-bucket, got %s", cfg.Store.S3Bucket)
	}
	if cfg.Store.S3Prefix != "prod/" {
		t.Errorf("expected prefix prod/, got %s", cfg.Store.S3Prefix)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.LogLevel)
	}
}

func TestLoad_S3MissingBucket(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: "s3"
`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for missing s3_bucket")
	}
}

func TestLoad_GitStore(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: "git"
  git_url: "https://example.com/catalog.git"
  git_branch: "main"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.GitURL != "https://example.com/catalog.git" {
		t.Errorf("unexpected git URL: %s", cfg.Store.GitURL)
	}
}

func TestLoad_GitMissingURL(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: "git"
`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for missing git_url")
	}
}

func TestLoad_UnsupportedStoreBackend(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: "consul"
`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for unsupported store backend")
	}
}

func TestLoad_RedisChannel(t *testing.T) {
	path := writeConfig(t, `
channel:
  backend: "redis"
  redis_addr: "localhost:6379"
  redis_db: 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Channel.RedisAddr != "localhost:6379" {
		t.Errorf("unexpected redis addr: %s", cfg.Channel.RedisAddr)
	}
	if cfg.Channel.RedisDB != 2 {
		t.Errorf("expected redis db 2, got %d", cfg.Channel.RedisDB)
	}
}

func TestLoad_RedisMissingAddr(t *testing.T) {
	path := writeConfig(t, `
channel:
  backend: "redis"
`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for missing redis_addr")
	}
}

func TestLoad_UnsupportedChannelBackend(t *testing.T) {
	path := writeConfig(t, `
channel:
  backend: "kafka"
`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for unsupported channel backend")
	}
}

func TestLoad_InvalidInactivityWindow(t *testing.T) {
	path := writeConfig(t, `
dispatcher:
  inactivity_window: 0s
`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for non-positive inactivity window")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/controlplane.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
