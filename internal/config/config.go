package config

import (
	"log/slog"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	LMStudio LMStudioConfig
	Storage  StorageConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

type LMStudioConfig struct {
	BaseURL        string
	Model          string
	TimeoutSeconds int
	MaxRetries     int
	Temperature    float64
	MaxTokens      int
	TopP           float64
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// Timeout returns the request timeout as a duration.
func (c LMStudioConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Level maps the configured log level string to a slog level.
// Unknown values fall back to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
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

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8474,
		},
		LMStudio: LMStudioConfig{
			BaseURL:        "http://localhost:1234",
			Model:          "qwen2.5-7b-instruct",
			TimeoutSeconds: 120,
			MaxRetries:     3,
			Temperature:    0.7,
			MaxTokens:      2000,
			TopP:           0.9,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/kian/config.json, then applies KIAN_* environment
// variable overrides on top. Missing file or keys fall back to defaults.
//
// The auth token may stay empty; the API then runs without bearer auth,
// which is the expected mode for a localhost-only daemon.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
