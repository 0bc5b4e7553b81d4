package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.base_url", typ: kString, env: "SDGCHAT_SERVER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Server.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.BaseURL },
	},
	{
		key: "server.timeout", typ: kDuration, env: "SDGCHAT_SERVER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Server.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Server.Timeout },
	},
	{
		key: "storage.backend", typ: kString, env: "SDGCHAT_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SDGCHAT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.redis_url", typ: kString, env: "SDGCHAT_STORAGE_REDIS_URL",
		apply:   func(cfg *Config, v any) { cfg.Storage.RedisURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.RedisURL },
	},
	{
		key: "chat.default_mode", typ: kString, env: "SDGCHAT_CHAT_DEFAULT_MODE",
		apply:   func(cfg *Config, v any) { cfg.Chat.DefaultMode = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.DefaultMode },
	},
	{
		key: "capture.record_limit", typ: kDuration, env: "SDGCHAT_CAPTURE_RECORD_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Capture.RecordLimit = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Capture.RecordLimit },
	},
	{
		key: "capture.image_quality", typ: kInt, env: "SDGCHAT_CAPTURE_IMAGE_QUALITY",
		apply:   func(cfg *Config, v any) { cfg.Capture.ImageQuality = v.(int) },
		extract: func(cfg Config) any { return cfg.Capture.ImageQuality },
	},
	{
		key: "memory.rules_file", typ: kString, env: "SDGCHAT_MEMORY_RULES_FILE",
		apply:   func(cfg *Config, v any) { cfg.Memory.RulesFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Memory.RulesFile },
	},
	{
		key: "locket.poll_interval", typ: kDuration, env: "SDGCHAT_LOCKET_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Locket.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Locket.PollInterval },
	},
	{
		key: "devserver.port", typ: kInt, env: "SDGCHAT_DEVSERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.DevServer.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.DevServer.Port },
	},
	{
		key: "log.level", typ: kString, env: "SDGCHAT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
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
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return fmt.Errorf("reading %s: %w", s.key, err)
				}
				s.apply(cfg, d)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
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
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
