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
		key: "server.port", typ: kInt, env: "TASKNEST_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "TASKNEST_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TASKNEST_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "TASKNEST_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "proxy.openrouter_api_key", typ: kString, env: "TASKNEST_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Proxy.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.OpenRouterAPIKey },
	},
	{
		key: "proxy.base_url", typ: kString, env: "TASKNEST_OPENROUTER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.BaseURL },
	},
	{
		key: "proxy.default_model", typ: kString, env: "TASKNEST_DEFAULT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.DefaultModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.DefaultModel },
	},
	{
		key: "proxy.mock_ai_file", typ: kString, env: "TASKNEST_MOCK_AI_FILE",
		apply:   func(cfg *Config, v any) { cfg.Proxy.MockAIFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.MockAIFile },
	},
	{
		key: "ollama.base_url", typ: kString, env: "TASKNEST_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "TASKNEST_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "agents.fetchai_base_url", typ: kString, env: "TASKNEST_FETCHAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Agents.FetchAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.FetchAI.BaseURL },
	},
	{
		key: "agents.fetchai_api_key", typ: kString, env: "TASKNEST_FETCHAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Agents.FetchAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.FetchAI.APIKey },
	},
	{
		key: "agents.janitorai_base_url", typ: kString, env: "TASKNEST_JANITORAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Agents.JanitorAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.JanitorAI.BaseURL },
	},
	{
		key: "agents.janitorai_api_key", typ: kString, env: "TASKNEST_JANITORAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Agents.JanitorAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.JanitorAI.APIKey },
	},
	{
		key: "agents.wordware_base_url", typ: kString, env: "TASKNEST_WORDWARE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Agents.Wordware.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.Wordware.BaseURL },
	},
	{
		key: "agents.wordware_api_key", typ: kString, env: "TASKNEST_WORDWARE_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Agents.Wordware.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.Wordware.APIKey },
	},
	{
		key: "agents.letta_base_url", typ: kString, env: "TASKNEST_LETTA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Agents.Letta.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.Letta.BaseURL },
	},
	{
		key: "agents.letta_api_key", typ: kString, env: "TASKNEST_LETTA_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Agents.Letta.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Agents.Letta.APIKey },
	},
	{
		key: "agents.fallback", typ: kBool, env: "TASKNEST_AGENT_FALLBACK",
		apply:   func(cfg *Config, v any) { cfg.Agents.FallbackEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Agents.FallbackEnabled },
	},
	{
		key: "agents.timeout", typ: kInt, env: "TASKNEST_AGENT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Agents.TimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Agents.TimeoutSeconds },
	},
	{
		key: "limits.rate_limit", typ: kInt, env: "TASKNEST_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Limits.Requests = v.(int) },
		extract: func(cfg Config) any { return cfg.Limits.Requests },
	},
	{
		key: "limits.rate_window", typ: kInt, env: "TASKNEST_RATE_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Limits.WindowSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Limits.WindowSeconds },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
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
		}
	}
}
