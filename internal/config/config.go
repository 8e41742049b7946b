package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL      = "http://127.0.0.1:7433"
	DefaultDBFileName  = ".filecask.db"
	DefaultBlobDirName = ".filecask-blobs"
	DefaultAlgorithm   = "sha256"
	DefaultLogLevel    = "info"

	DefaultMaxUploadBytes     int64 = 512 * 1024 * 1024
	DefaultQuotaBytes         int64 = 10 * 1024 * 1024
	DefaultRateLimitOps             = 0
	DefaultRateLimitWindowSec       = 60

	configFileName  = ".filecask.toml"
	configDirEnvKey = "FILECASK_CONFIG_DIR"

	apiURLEnvKey    = "FILECASK_API_URL"
	dbPathEnvKey    = "FILECASK_DB"
	blobRootEnvKey  = "FILECASK_BLOB_ROOT"
	algorithmEnvKey = "FILECASK_DIGEST_ALGORITHM"
	userEnvKey      = "FILECASK_USER"
)

// StorageConfig defines runtime configuration for blob and quota handling.
type StorageConfig struct {
	MaxUploadBytes    int64  `toml:"max_upload_bytes"`
	DefaultQuotaBytes int64  `toml:"default_quota_bytes"`
	Algorithm         string `toml:"algorithm"`
}

// RateLimitConfig caps mutating API calls per user.
type RateLimitConfig struct {
	Ops           int `toml:"ops"`
	WindowSeconds int `toml:"window_seconds"`
}

// Config defines runtime configuration for filecask.
type Config struct {
	APIURL    string          `toml:"api_url"`
	DBPath    string          `toml:"db_path"`
	BlobRoot  string          `toml:"blob_root"`
	Username  string          `toml:"username"`
	LogLevel  string          `toml:"log_level"`
	Storage   StorageConfig   `toml:"storage"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Storage: StorageConfig{
			MaxUploadBytes:    DefaultMaxUploadBytes,
			DefaultQuotaBytes: DefaultQuotaBytes,
			Algorithm:         DefaultAlgorithm,
		},
		RateLimit: RateLimitConfig{
			Ops:           DefaultRateLimitOps,
			WindowSeconds: DefaultRateLimitWindowSec,
		},
	}
}

// Load reads the config file and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	path, err := Path()
	if err != nil {
		return nil, err
	}
	if err := loadFileIfExists(path, &cfg); err != nil {
		return nil, err
	}

	if cfg.DBPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DBPath = filepath.Join(home, DefaultDBFileName)
		}
	}
	if cfg.BlobRoot == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.BlobRoot = filepath.Join(home, DefaultBlobDirName)
		}
	}

	if apiURL := os.Getenv(apiURLEnvKey); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath := os.Getenv(dbPathEnvKey); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if blobRoot := os.Getenv(blobRootEnvKey); blobRoot != "" {
		cfg.BlobRoot = blobRoot
	}
	if algo := strings.TrimSpace(os.Getenv(algorithmEnvKey)); algo != "" {
		cfg.Storage.Algorithm = algo
	}
	if user := strings.TrimSpace(os.Getenv(userEnvKey)); user != "" {
		cfg.Username = user
	}

	cfg.normalizeDefaults()
	return &cfg, nil
}

// Path returns the location of the config file, honoring the config dir
// override.
func Path() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(configDirEnvKey)); dir != "" {
		return filepath.Join(dir, configFileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

func loadFileIfExists(path string, cfg *Config) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"blob_root",
	"username",
	"log_level",
	"storage.max_upload_bytes",
	"storage.default_quota_bytes",
	"storage.algorithm",
	"rate_limit.ops",
	"rate_limit.window_seconds",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "blob_root":
		return c.BlobRoot, nil
	case "username":
		return c.Username, nil
	case "log_level":
		return c.LogLevel, nil
	case "storage.max_upload_bytes":
		return strconv.FormatInt(c.Storage.MaxUploadBytes, 10), nil
	case "storage.default_quota_bytes":
		return strconv.FormatInt(c.Storage.DefaultQuotaBytes, 10), nil
	case "storage.algorithm":
		return c.Storage.Algorithm, nil
	case "rate_limit.ops":
		return strconv.Itoa(c.RateLimit.Ops), nil
	case "rate_limit.window_seconds":
		return strconv.Itoa(c.RateLimit.WindowSeconds), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "storage.max_upload_bytes", "storage.default_quota_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "rate_limit.ops", "rate_limit.window_seconds":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return parsed, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeDefaults() {
	if c.Storage.MaxUploadBytes <= 0 {
		c.Storage.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Storage.DefaultQuotaBytes <= 0 {
		c.Storage.DefaultQuotaBytes = DefaultQuotaBytes
	}
	if strings.TrimSpace(c.Storage.Algorithm) == "" {
		c.Storage.Algorithm = DefaultAlgorithm
	}
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = DefaultRateLimitWindowSec
	}
}
