package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Ollama  OllamaConfig
	OpenAI  OpenAIConfig
	Chat    ChatConfig
	Storage StorageConfig
	Log     LogConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
	// Backend is "ollama" for the native API or "openai" for the
	// OpenAI-compatible one.
	Backend        string
	RequestTimeout time.Duration
	PullMissing    bool
}

type OpenAIConfig struct {
	APIKey string
}

type ChatConfig struct {
	Stream           bool
	Persona          string
	System           string
	MaxHistoryTokens int
	// Temperature below zero leaves the backend default in place.
	Temperature float64
}

type StorageConfig struct {
	DataDir string
	// Record enables the transcript log.
	Record bool
}

type LogConfig struct {
	Level  string
	Format string
	// File defaults to ollamakit.log in the data directory.
	File string
}

func defaults() Config {
	return Config{
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama2",
			Backend: "ollama",
		},
		Chat: ChatConfig{
			Stream:      true,
			Persona:     "conversation",
			Temperature: -1,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration in increasing order of precedence: built-in
// defaults, the TOML file at Path(), then OLLAMAKIT_* environment variables.
// Command-line flags are applied on top by the caller.
func Load() (Config, error) {
	return loadFromPath(Path())
}

func loadFromPath(path string) (Config, error) {
	b, err := openFileBackend(path)
	if err != nil {
		return Config{}, err
	}
	return loadWith(b)
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that have a closed set of valid forms.
func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q (want debug, info, warn or error)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q (want text or json)", c.Log.Format)
	}
	if c.Ollama.RequestTimeout < 0 {
		return fmt.Errorf("invalid ollama.request_timeout %s: must not be negative", c.Ollama.RequestTimeout)
	}
	if c.Chat.MaxHistoryTokens < 0 {
		return fmt.Errorf("invalid chat.max_history_tokens %d: must not be negative", c.Chat.MaxHistoryTokens)
	}
	return nil
}

// Sampling returns backend sampling options derived from the chat settings.
func (c Config) Sampling() map[string]any {
	if c.Chat.Temperature < 0 {
		return nil
	}
	return map[string]any{"temperature": c.Chat.Temperature}
}
