package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.APIURL != "http://127.0.0.1:7433" {
		t.Fatalf("expected default API URL, got %q", cfg.APIURL)
	}
	if cfg.DBPath != "" {
		t.Fatalf("expected empty db path, got %q", cfg.DBPath)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Storage.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Fatalf("expected max upload default %d, got %d", DefaultMaxUploadBytes, cfg.Storage.MaxUploadBytes)
	}
	if cfg.Storage.DefaultQuotaBytes != DefaultQuotaBytes {
		t.Fatalf("expected quota default %d, got %d", DefaultQuotaBytes, cfg.Storage.DefaultQuotaBytes)
	}
	if cfg.Storage.Algorithm != DefaultAlgorithm {
		t.Fatalf("expected algorithm default %q, got %q", DefaultAlgorithm, cfg.Storage.Algorithm)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, configFileName)
	if err := os.WriteFile(path, []byte(`api_url = "http://localhost:9999"
username = "alice"
log_level = "warn"

[storage]
default_quota_bytes = 5000
algorithm = "blake2b256"
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFileIfExists(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://localhost:9999" {
		t.Fatalf("expected api_url 'http://localhost:9999', got %q", cfg.APIURL)
	}
	if cfg.Username != "alice" {
		t.Fatalf("expected username 'alice', got %q", cfg.Username)
	}
	if cfg.Storage.DefaultQuotaBytes != 5000 {
		t.Fatalf("expected quota 5000, got %d", cfg.Storage.DefaultQuotaBytes)
	}
	if cfg.Storage.Algorithm != "blake2b256" {
		t.Fatalf("expected algorithm blake2b256, got %q", cfg.Storage.Algorithm)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFileIfExists("/nonexistent/path/.filecask.toml", &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatal("defaults should be preserved")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)
	t.Setenv(apiURLEnvKey, "http://127.0.0.1:7500")
	t.Setenv(dbPathEnvKey, filepath.Join(dir, "cask.db"))
	t.Setenv(blobRootEnvKey, filepath.Join(dir, "blobs"))
	t.Setenv(userEnvKey, "bob")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://127.0.0.1:7500" {
		t.Fatalf("env api_url not applied: %q", cfg.APIURL)
	}
	if cfg.DBPath != filepath.Join(dir, "cask.db") {
		t.Fatalf("env db path not applied: %q", cfg.DBPath)
	}
	if cfg.BlobRoot != filepath.Join(dir, "blobs") {
		t.Fatalf("env blob root not applied: %q", cfg.BlobRoot)
	}
	if cfg.Username != "bob" {
		t.Fatalf("env username not applied: %q", cfg.Username)
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range AllowedKeys() {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	if IsAllowedKey("nope") {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestSetKeyRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, configFileName)

	if err := SetKey(path, "storage.default_quota_bytes", "2048"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	if err := SetKey(path, "username", "carol"); err != nil {
		t.Fatalf("set key: %v", err)
	}
	if err := SetKey(path, "bogus", "x"); err == nil {
		t.Fatal("expected unknown key rejection")
	}
	if err := SetKey(path, "storage.default_quota_bytes", "-1"); err == nil {
		t.Fatal("expected negative quota rejection")
	}

	cfg := Default()
	if err := loadFileIfExists(path, &cfg); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Storage.DefaultQuotaBytes != 2048 {
		t.Fatalf("expected persisted quota 2048, got %d", cfg.Storage.DefaultQuotaBytes)
	}
	if cfg.Username != "carol" {
		t.Fatalf("expected persisted username carol, got %q", cfg.Username)
	}
}
