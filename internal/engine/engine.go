package engine

import "context"

// Engine abstracts a local text-completion backend (Ollama or any
// OpenAI-compatible server). The harness uses this interface instead of
// depending on a concrete client.
type Engine interface {
	// Generate sends the request and blocks until the full completion is available.
	Generate(ctx context.Context, req Request) (string, error)

	// GenerateStream sends the request and returns fragments as they arrive.
	GenerateStream(ctx context.Context, req Request) (Stream, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of all locally available models.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available locally.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
