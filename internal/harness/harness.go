// Package harness sends prompts, optionally templated and prefixed with
// conversation history, to a local completion service and hands back the
// answer as a pull-based stream of fragments.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/ollamakit/internal/composer"
	"github.com/kalambet/ollamakit/internal/engine"
	"github.com/kalambet/ollamakit/internal/memory"
	"github.com/kalambet/ollamakit/internal/prompt"
)

// DefaultBaseURL is where a local Ollama listens unless configured otherwise.
const DefaultBaseURL = "http://localhost:11434"

// Options configures a Harness.
type Options struct {
	// Model is the model identifier, e.g. "llama2". Required.
	Model string
	// BaseURL is the completion service address. Defaults to DefaultBaseURL.
	BaseURL string
	// Streaming selects incremental delivery of fragments.
	Streaming bool
	// Backend is "ollama" (default) or "openai".
	Backend string
	// APIKey is sent to OpenAI-compatible backends.
	APIKey string
	// System is an optional system prompt sent with every request.
	System string
	// Sampling holds backend options such as temperature or num_predict.
	Sampling map[string]any
	// RequestTimeout bounds a whole completion, stream included. Zero waits indefinitely.
	RequestTimeout time.Duration
	// MaxHistoryTokens caps the history prepended to prompts. Zero means no cap.
	MaxHistoryTokens int
	// HTTPClient is used for backend requests when set.
	HTTPClient *http.Client
	// Engine, when set, replaces backend selection entirely.
	Engine engine.Engine
}

// Harness is a configured handle to a completion service. It holds no
// per-conversation state and may be shared.
type Harness struct {
	engine    engine.Engine
	model     string
	baseURL   string
	streaming bool
	system    string
	sampling  map[string]any
	timeout   time.Duration
	composer  *composer.Composer
}

// Configure validates opts and builds a Harness. No network I/O happens
// until a completion is requested.
func Configure(opts Options) (*Harness, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, fmt.Errorf("%w: model identifier is empty", ErrConfiguration)
	}

	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if err := validateBaseURL(baseURL); err != nil {
		return nil, err
	}
	if opts.RequestTimeout < 0 {
		return nil, fmt.Errorf("%w: negative request timeout %s", ErrConfiguration, opts.RequestTimeout)
	}

	e := opts.Engine
	if e == nil {
		var err error
		e, err = engine.Detect(engine.DetectConfig{
			Backend:    opts.Backend,
			BaseURL:    baseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}

	return &Harness{
		engine:    e,
		model:     model,
		baseURL:   baseURL,
		streaming: opts.Streaming,
		system:    opts.System,
		sampling:  opts.Sampling,
		timeout:   opts.RequestTimeout,
		composer:  composer.New(opts.MaxHistoryTokens),
	}, nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: malformed endpoint address %q: %w", ErrConfiguration, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: endpoint address %q must use http or https", ErrConfiguration, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: endpoint address %q has no host", ErrConfiguration, raw)
	}
	return nil
}

func (h *Harness) Model() string         { return h.model }
func (h *Harness) BaseURL() string       { return h.baseURL }
func (h *Harness) Streaming() bool       { return h.streaming }
func (h *Harness) Engine() engine.Engine { return h.engine }

// WithStreaming returns a copy of h with the delivery mode changed.
func (h *Harness) WithStreaming(streaming bool) *Harness {
	c := *h
	c.streaming = streaming
	return &c
}

// ExpandTemplate substitutes every {name} placeholder in tmpl.
func ExpandTemplate(tmpl string, vars map[string]string) (string, error) {
	return prompt.Expand(tmpl, vars)
}

// AppendHistory returns a new history with the exchange appended.
func AppendHistory(h memory.History, human, ai string) memory.History {
	return h.Append(human, ai)
}

// EffectivePrompt is the text Complete sends for prompt and history.
func (h *Harness) EffectivePrompt(p string, history memory.History) string {
	return h.composer.Compose(history, p)
}

// Complete prefixes p with the serialized history and sends it. In streaming
// mode the returned Result yields fragments as they arrive; otherwise the
// call blocks until the full text is available and the Result yields it as
// a single fragment. Failures are returned immediately without retry.
// The caller must Close the Result.
func (h *Harness) Complete(ctx context.Context, p string, history memory.History) (*Result, error) {
	effective := h.EffectivePrompt(p, history)
	req := engine.Request{
		Model:   h.model,
		Prompt:  effective,
		System:  h.system,
		Options: h.sampling,
	}

	parent := ctx
	cancel := context.CancelFunc(func() {})
	if h.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
	}

	slog.Debug("completion request", "model", h.model, "stream", h.streaming, "prompt_chars", len(effective))

	var (
		s   engine.Stream
		err error
	)
	if h.streaming {
		s, err = h.engine.GenerateStream(ctx, req)
	} else {
		var text string
		text, err = h.engine.Generate(ctx, req)
		s = engine.TextStream(text)
	}
	if err != nil {
		cancel()
		return nil, h.classify(parent, err)
	}

	return &Result{
		stream: s,
		cancel: cancel,
		prompt: effective,
		classify: func(err error) error {
			return h.classify(parent, err)
		},
	}, nil
}

// Send completes p and writes the answer to sink as it arrives.
func (h *Harness) Send(ctx context.Context, p string, history memory.History, sink io.Writer) (Reply, error) {
	start := time.Now()
	res, err := h.Complete(ctx, p, history)
	if err != nil {
		return Reply{Prompt: h.EffectivePrompt(p, history), Elapsed: time.Since(start)}, err
	}
	defer res.Close()

	_, err = res.WriteTo(sink)
	reply := Reply{Prompt: res.Prompt(), Text: res.Text(), Elapsed: time.Since(start)}
	slog.Debug("completion finished", "model", h.model, "chars", len(reply.Text), "elapsed", reply.Elapsed, "error", err)
	return reply, err
}

// Reply summarizes one completed exchange with the service.
type Reply struct {
	// Prompt is the effective prompt that was sent.
	Prompt string
	// Text is everything received, possibly partial when an error is returned alongside.
	Text    string
	Elapsed time.Duration
}

// classify turns the harness's own deadline into a ServiceUnavailable error.
// A deadline or cancellation coming from the caller is returned unchanged.
func (h *Harness) classify(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil && h.timeout > 0 {
		return fmt.Errorf("%w: no complete response within %s", ErrServiceUnavailable, h.timeout)
	}
	return err
}
