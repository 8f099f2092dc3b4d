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
	kBool
	kFloat
	kDuration
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
		key: "ollama.base_url", typ: kString, env: "OLLAMAKIT_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "OLLAMAKIT_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "ollama.backend", typ: kString, env: "OLLAMAKIT_OLLAMA_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Backend },
	},
	{
		key: "ollama.request_timeout", typ: kDuration, env: "OLLAMAKIT_OLLAMA_REQUEST_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Ollama.RequestTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Ollama.RequestTimeout },
	},
	{
		key: "ollama.pull_missing", typ: kBool, env: "OLLAMAKIT_OLLAMA_PULL_MISSING",
		apply:   func(cfg *Config, v any) { cfg.Ollama.PullMissing = v.(bool) },
		extract: func(cfg Config) any { return cfg.Ollama.PullMissing },
	},
	{
		key: "openai.api_key", typ: kString, env: "OLLAMAKIT_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "chat.stream", typ: kBool, env: "OLLAMAKIT_CHAT_STREAM",
		apply:   func(cfg *Config, v any) { cfg.Chat.Stream = v.(bool) },
		extract: func(cfg Config) any { return cfg.Chat.Stream },
	},
	{
		key: "chat.persona", typ: kString, env: "OLLAMAKIT_CHAT_PERSONA",
		apply:   func(cfg *Config, v any) { cfg.Chat.Persona = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.Persona },
	},
	{
		key: "chat.system", typ: kString, env: "OLLAMAKIT_CHAT_SYSTEM",
		apply:   func(cfg *Config, v any) { cfg.Chat.System = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.System },
	},
	{
		key: "chat.max_history_tokens", typ: kInt, env: "OLLAMAKIT_CHAT_MAX_HISTORY_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Chat.MaxHistoryTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Chat.MaxHistoryTokens },
	},
	{
		key: "chat.temperature", typ: kFloat, env: "OLLAMAKIT_CHAT_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Chat.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Chat.Temperature },
	},
	{
		key: "storage.data_dir", typ: kString, env: "OLLAMAKIT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.record", typ: kBool, env: "OLLAMAKIT_STORAGE_RECORD",
		apply:   func(cfg *Config, v any) { cfg.Storage.Record = v.(bool) },
		extract: func(cfg Config) any { return cfg.Storage.Record },
	},
	{
		key: "log.level", typ: kString, env: "OLLAMAKIT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "OLLAMAKIT_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "log.file", typ: kString, env: "OLLAMAKIT_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parse converts a raw string into the key's value type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		var (
			v   any
			ok  bool
			err error
		)
		switch s.typ {
		case kString:
			v, ok, err = b.GetString(s.key)
		case kInt:
			v, ok, err = b.GetInt(s.key)
		case kBool:
			v, ok, err = b.GetBool(s.key)
		case kFloat:
			v, ok, err = b.GetFloat(s.key)
		case kDuration:
			var raw string
			raw, ok, err = b.GetString(s.key)
			if err == nil && ok {
				v, err = time.ParseDuration(raw)
			}
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if ok {
			s.apply(cfg, v)
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
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using configured value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
