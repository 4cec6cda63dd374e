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
	kBool
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
		key: "server.port", typ: kInt, env: "HELMSMAN_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "ollama.base_url", typ: kString, env: "HELMSMAN_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.fast_model", typ: kString, env: "HELMSMAN_OLLAMA_FAST_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.FastModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.FastModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "HELMSMAN_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "HELMSMAN_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "cloud.openrouter_api_key", typ: kString, env: "HELMSMAN_OPENROUTER_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Cloud.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Cloud.OpenRouterAPIKey },
	},
	{
		key: "cloud.default_model", typ: kString, env: "HELMSMAN_CLOUD_DEFAULT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Cloud.DefaultModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Cloud.DefaultModel },
	},
	{
		key: "log.level", typ: kString, env: "HELMSMAN_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "timeout.generate", typ: kString, env: "HELMSMAN_TIMEOUT_GENERATE",
		apply:   func(cfg *Config, v any) { cfg.Timeout.Generate = v.(string) },
		extract: func(cfg Config) any { return cfg.Timeout.Generate },
	},
	{
		key: "timeout.queue_task", typ: kString, env: "HELMSMAN_TIMEOUT_QUEUE_TASK",
		apply:   func(cfg *Config, v any) { cfg.Timeout.QueueTask = v.(string) },
		extract: func(cfg Config) any { return cfg.Timeout.QueueTask },
	},
	{
		key: "rerank.enabled", typ: kBool, env: "HELMSMAN_RERANK_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Rerank.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Rerank.Enabled },
	},
	{
		key: "rerank.threshold", typ: kFloat, env: "HELMSMAN_RERANK_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Rerank.Threshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Rerank.Threshold },
	},
	{
		key: "rerank.timeout", typ: kString, env: "HELMSMAN_RERANK_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Rerank.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Rerank.Timeout },
	},
}

func applyBackend(cfg *Config, b backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
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
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
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
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
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
