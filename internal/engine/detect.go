package engine

import (
	"fmt"
	"net/http"
	"strings"
)

// Backend names accepted by Detect.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend    string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Detect returns the engine for the configured backend. An empty backend
// name selects Ollama's native API.
func Detect(cfg DetectConfig) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendOllama:
		if cfg.HTTPClient != nil {
			return NewOllamaEngineWithHTTPClient(cfg.BaseURL, cfg.HTTPClient), nil
		}
		return NewOllamaEngine(cfg.BaseURL), nil
	case BackendOpenAI:
		return NewOpenAIEngine(cfg.BaseURL, cfg.APIKey, cfg.HTTPClient), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want %q or %q)", cfg.Backend, BackendOllama, BackendOpenAI)
	}
}
