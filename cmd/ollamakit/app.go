package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kalambet/ollamakit/internal/config"
	"github.com/kalambet/ollamakit/internal/engine"
	"github.com/kalambet/ollamakit/internal/harness"
	"github.com/kalambet/ollamakit/internal/logging"
	"github.com/kalambet/ollamakit/internal/session"
	"github.com/kalambet/ollamakit/internal/storage"
)

// app holds what a command needs to talk to the model: the resolved config,
// a configured harness and, when recording is on, the transcript store.
type app struct {
	cfg       config.Config
	harness   *harness.Harness
	store     *storage.Store
	sessionID string
	logger    *slog.Logger
	closers   []io.Closer
}

// loadConfig reads the layered config and applies the global flags on top.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if flagBaseURL != "" {
		cfg.Ollama.BaseURL = flagBaseURL
	}
	if flagModel != "" {
		cfg.Ollama.Model = flagModel
	}
	if flagBackend != "" {
		cfg.Ollama.Backend = flagBackend
	}
	if flagNoStream {
		cfg.Chat.Stream = false
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, sessionID: uuid.NewString()}

	logger, closer, err := logging.Init(cfg)
	if err != nil {
		printWarning("logging disabled: %v", err)
	}
	a.logger = logger
	a.closers = append(a.closers, closer)

	h, err := harness.Configure(harness.Options{
		Model:            cfg.Ollama.Model,
		BaseURL:          cfg.Ollama.BaseURL,
		Streaming:        cfg.Chat.Stream,
		Backend:          cfg.Ollama.Backend,
		APIKey:           cfg.OpenAI.APIKey,
		System:           cfg.Chat.System,
		Sampling:         cfg.Sampling(),
		RequestTimeout:   cfg.Ollama.RequestTimeout,
		MaxHistoryTokens: cfg.Chat.MaxHistoryTokens,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.harness = h

	if cfg.Storage.Record {
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening transcript log: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, store)
	}

	a.logger.Info("session started",
		"command", cmd.Name(),
		"session", a.sessionID,
		"model", cfg.Ollama.Model,
		"base_url", cfg.Ollama.BaseURL,
		"backend", cfg.Ollama.Backend,
		"stream", cfg.Chat.Stream,
		"record", cfg.Storage.Record,
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			printWarning("closing: %v", err)
		}
	}
	a.closers = nil
}

// ensureReady pulls the configured model when ollama.pull_missing is set.
// Otherwise an unreachable service surfaces on the first turn.
func (a *app) ensureReady(ctx context.Context, w io.Writer) error {
	if !a.cfg.Ollama.PullMissing {
		return nil
	}
	return engine.EnsureReady(ctx, a.harness.Engine(), []string{a.cfg.Ollama.Model}, true, w)
}

// recorder returns the transcript recorder for mode, or nil when recording is off.
func (a *app) recorder(mode string) session.Recorder {
	if a.store == nil {
		return nil
	}
	return &storeRecorder{
		store:     a.store,
		sessionID: a.sessionID,
		mode:      mode,
		model:     a.harness.Model(),
		baseURL:   a.harness.BaseURL(),
	}
}
