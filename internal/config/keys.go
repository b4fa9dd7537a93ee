package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "KIAN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "KIAN_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "lmstudio.base_url", typ: kString, env: "KIAN_LMSTUDIO_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LMStudio.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LMStudio.BaseURL },
	},
	{
		key: "lmstudio.model", typ: kString, env: "KIAN_LMSTUDIO_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LMStudio.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LMStudio.Model },
	},
	{
		key: "lmstudio.timeout_seconds", typ: kInt, env: "KIAN_LMSTUDIO_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.LMStudio.TimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.LMStudio.TimeoutSeconds },
	},
	{
		key: "lmstudio.max_retries", typ: kInt, env: "KIAN_LMSTUDIO_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.LMStudio.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.LMStudio.MaxRetries },
	},
	{
		key: "lmstudio.temperature", typ: kFloat, env: "KIAN_LMSTUDIO_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.LMStudio.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.LMStudio.Temperature },
	},
	{
		key: "lmstudio.max_tokens", typ: kInt, env: "KIAN_LMSTUDIO_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.LMStudio.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.LMStudio.MaxTokens },
	},
	{
		key: "lmstudio.top_p", typ: kFloat, env: "KIAN_LMSTUDIO_TOP_P",
		apply:   func(cfg *Config, v any) { cfg.LMStudio.TopP = v.(float64) },
		extract: func(cfg Config) any { return cfg.LMStudio.TopP },
	},
	{
		key: "storage.data_dir", typ: kString, env: "KIAN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "KIAN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
