package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/ollamakit/internal/ollama"
)

// OllamaEngine adapts the internal/ollama.Client to the Engine interface
// using the native /api/generate endpoint.
type OllamaEngine struct {
	client *ollama.Client
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

// NewOllamaEngineWithHTTPClient is like NewOllamaEngine but sends requests through hc.
func NewOllamaEngineWithHTTPClient(baseURL string, hc *http.Client) *OllamaEngine {
	return &OllamaEngine{client: ollama.NewWithHTTPClient(baseURL, hc)}
}

func (e *OllamaEngine) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := e.client.Generate(ctx, toGenerateRequest(req))
	if err != nil {
		return "", classifyOllama(err)
	}
	return resp.Response, nil
}

func (e *OllamaEngine) GenerateStream(ctx context.Context, req Request) (Stream, error) {
	s, err := e.client.GenerateStream(ctx, toGenerateRequest(req))
	if err != nil {
		return nil, classifyOllama(err)
	}
	return &ollamaStream{s: s}, nil
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	models, err := e.client.ListModels(ctx)
	if err != nil {
		return nil, classifyOllama(err)
	}
	return models, nil
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{
				Status:    p.Status,
				Total:     p.Total,
				Completed: p.Completed,
			})
		}
	}
	return classifyOllama(e.client.PullModel(ctx, name, cb))
}

func toGenerateRequest(req Request) ollama.GenerateRequest {
	return ollama.GenerateRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		System:  req.System,
		Options: req.Options,
	}
}

// ollamaStream maps stream errors onto the engine error kinds.
type ollamaStream struct {
	s *ollama.GenerateStream
}

func (o *ollamaStream) Next() bool       { return o.s.Next() }
func (o *ollamaStream) Fragment() string { return o.s.Fragment() }
func (o *ollamaStream) Err() error       { return classifyOllama(o.s.Err()) }
func (o *ollamaStream) Close() error     { return o.s.Close() }

// classifyOllama wraps client errors with ErrServiceUnavailable or ErrInference.
// Context cancellation is passed through untouched.
func classifyOllama(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ollama.ErrUnreachable):
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrInference, err)
	}
}
