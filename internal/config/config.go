package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sdgteacher/sdgchat/internal/backend"
)

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Chat      ChatConfig
	Capture   CaptureConfig
	Memory    MemoryConfig
	Locket    LocketConfig
	DevServer DevServerConfig
	Log       LogConfig
}

type ServerConfig struct {
	BaseURL string
	Timeout time.Duration
}

type StorageConfig struct {
	Backend  string
	DataDir  string
	RedisURL string
}

type ChatConfig struct {
	DefaultMode string
}

type CaptureConfig struct {
	RecordLimit  time.Duration
	ImageQuality int
}

type MemoryConfig struct {
	// RulesFile optionally points at a YAML file overriding the built-in
	// extraction vocabularies.
	RulesFile string
}

type LocketConfig struct {
	PollInterval time.Duration
}

type DevServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			BaseURL: backend.DefaultBaseURL,
			Timeout: backend.DefaultTimeout,
		},
		Storage: StorageConfig{
			Backend: StorageSQLite,
			DataDir: defaultDataDir(),
		},
		Chat: ChatConfig{
			DefaultMode: backend.ModeSustainability,
		},
		Capture: CaptureConfig{
			RecordLimit:  30 * time.Second,
			ImageQuality: 85,
		},
		Locket: LocketConfig{
			PollInterval: 5 * time.Second,
		},
		DevServer: DevServerConfig{
			Port: 8000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SlogLevel maps Log.Level to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/sdgchat/config.json, then applies SDGCHAT_* environment
// variables. A .env file in the working directory is loaded first; it never
// overrides variables already set in the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !backend.ValidMode(c.Chat.DefaultMode) {
		return fmt.Errorf("invalid chat.default_mode %q: must be one of %s", c.Chat.DefaultMode, strings.Join(backend.Modes, ", "))
	}
	switch c.Storage.Backend {
	case StorageSQLite:
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.backend is redis but storage.redis_url is empty")
		}
	default:
		return fmt.Errorf("invalid storage.backend %q: must be %s or %s", c.Storage.Backend, StorageSQLite, StorageRedis)
	}
	if c.Capture.ImageQuality < 1 || c.Capture.ImageQuality > 100 {
		return fmt.Errorf("invalid capture.image_quality %d: must be between 1 and 100", c.Capture.ImageQuality)
	}
	if c.Capture.RecordLimit <= 0 {
		return fmt.Errorf("invalid capture.record_limit %s: must be positive", c.Capture.RecordLimit)
	}
	if c.Locket.PollInterval <= 0 {
		return fmt.Errorf("invalid locket.poll_interval %s: must be positive", c.Locket.PollInterval)
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "sdgchat-data"
		}
	}
	return filepath.Join(dir, "sdgchat")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "sdgchat", "config.json")
}
