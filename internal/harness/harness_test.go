package harness

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/ollamakit/internal/engine"
	"github.com/kalambet/ollamakit/internal/memory"
	"github.com/kalambet/ollamakit/internal/ollamatest"
)

func newHarness(t *testing.T, srv *ollamatest.Server, streaming bool) *Harness {
	t.Helper()
	h, err := Configure(Options{Model: "llama2", BaseURL: srv.URL, Streaming: streaming})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return h
}

func TestConfigure_Errors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"empty model", Options{Model: "  "}},
		{"relative url", Options{Model: "llama2", BaseURL: "localhost:11434"}},
		{"bad scheme", Options{Model: "llama2", BaseURL: "ftp://localhost:11434"}},
		{"no host", Options{Model: "llama2", BaseURL: "http://"}},
		{"unparseable", Options{Model: "llama2", BaseURL: "http://[::1"}},
		{"unknown backend", Options{Model: "llama2", Backend: "mlx"}},
		{"negative timeout", Options{Model: "llama2", RequestTimeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Configure(tt.opts)
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
			if Kind(err) != "ConfigurationError" {
				t.Errorf("Kind = %q", Kind(err))
			}
		})
	}
}

func TestConfigure_Defaults(t *testing.T) {
	h, err := Configure(Options{Model: "llama2"})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if h.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL() = %q, want %q", h.BaseURL(), DefaultBaseURL)
	}
	if _, ok := h.Engine().(*engine.OllamaEngine); !ok {
		t.Errorf("Engine() = %T, want *engine.OllamaEngine", h.Engine())
	}
}

func TestConfigure_NoIO(t *testing.T) {
	// Nothing listens on this port; Configure must still succeed.
	if _, err := Configure(Options{Model: "llama2", BaseURL: "http://127.0.0.1:1"}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
}

func TestExpandTemplate(t *testing.T) {
	got, err := ExpandTemplate("Tell me a joke about {whom}.", map[string]string{"whom": "programmers"})
	if err != nil {
		t.Fatalf("ExpandTemplate: %v", err)
	}
	if got != "Tell me a joke about programmers." {
		t.Errorf("got %q", got)
	}

	_, err = ExpandTemplate("Tell me a joke about {whom}.", map[string]string{})
	if !errors.Is(err, ErrTemplate) || Kind(err) != "TemplateError" {
		t.Errorf("err = %v (%s), want TemplateError", err, Kind(err))
	}
}

func TestAppendHistory(t *testing.T) {
	h := AppendHistory(memory.History{}, "hi", "hello")
	h2 := AppendHistory(h, "joke?", "no")
	if h.Len() != 2 || h2.Len() != 4 {
		t.Errorf("lengths = %d, %d", h.Len(), h2.Len())
	}
	last := h2.Entries()[2:]
	if last[0].Text != "joke?" || last[1].Text != "no" {
		t.Errorf("last entries = %+v", last)
	}
}

func TestComplete_NonStreamingSingleFragment(t *testing.T) {
	srv := ollamatest.New()
	defer srv.Close()
	h := newHarness(t, srv, false)

	res, err := h.Complete(context.Background(), "Tell me a joke about a programmer.", memory.History{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	defer res.Close()

	var fragments []string
	for res.Next() {
		fragments = append(fragments, res.Fragment())
	}
	if err := res.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if len(fragments) != 1 || fragments[0] != srv.Text() {
		t.Errorf("fragments = %q, want one fragment %q", fragments, srv.Text())
	}
	if srv.Calls()[0].Stream {
		t.Error("non-streaming harness sent stream=true")
	}
}

func TestComplete_StreamingMatchesNonStreaming(t *testing.T) {
	srv := ollamatest.New()
	defer srv.Close()
	ctx := context.Background()

	full, err := mustComplete(t, newHarness(t, srv, false), ctx).Collect()
	if err != nil {
		t.Fatalf("Collect (non-streaming): %v", err)
	}

	res := mustComplete(t, newHarness(t, srv, true), ctx)
	var n int
	var sb strings.Builder
	for res.Next() {
		n++
		sb.WriteString(res.Fragment())
	}
	res.Close()
	if n < 2 {
		t.Errorf("streaming delivered %d fragments, want several", n)
	}
	if sb.String() != full {
		t.Errorf("streamed %q, want %q", sb.String(), full)
	}
}

func mustComplete(t *testing.T, h *Harness, ctx context.Context) *Result {
	t.Helper()
	res, err := h.Complete(ctx, "Tell me a joke about a programmer.", memory.History{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	return res
}

func TestComplete_HistoryPrefix(t *testing.T) {
	srv := ollamatest.New()
	defer srv.Close()
	h := newHarness(t, srv, true)
	ctx := context.Background()

	var history memory.History
	first := "My name is Ada."
	reply, err := h.Send(ctx, first, history, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("first Send: %v", err)
	}
	history = AppendHistory(history, first, reply.Text)

	if _, err := h.Send(ctx, "What is my name?", history, &bytes.Buffer{}); err != nil {
		t.Fatalf("second Send: %v", err)
	}

	calls := srv.Calls()
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	second := calls[1].Prompt
	want := "Human: " + first + "\nAI: " + srv.Text() + "\nWhat is my name?"
	if second != want {
		t.Errorf("second prompt =\n%q\nwant\n%q", second, want)
	}
}

func TestComplete_ServiceUnavailable(t *testing.T) {
	srv := ollamatest.New()
	srv.Close()

	for _, streaming := range []bool{false, true} {
		h := newHarness(t, srv, streaming)
		_, err := h.Complete(context.Background(), "hi", memory.History{})
		if !errors.Is(err, ErrServiceUnavailable) {
			t.Errorf("streaming=%v: err = %v, want ErrServiceUnavailable", streaming, err)
		}
		if Kind(err) != "ServiceUnavailableError" {
			t.Errorf("Kind = %q", Kind(err))
		}
	}
}

func TestComplete_Inference(t *testing.T) {
	srv := ollamatest.New(ollamatest.WithError("model requires more system memory"))
	defer srv.Close()

	for _, streaming := range []bool{false, true} {
		h := newHarness(t, srv, streaming)
		_, err := h.Complete(context.Background(), "hi", memory.History{})
		if !errors.Is(err, ErrInference) {
			t.Errorf("streaming=%v: err = %v, want ErrInference", streaming, err)
		}
		if Kind(err) != "InferenceError" {
			t.Errorf("Kind = %q", Kind(err))
		}
	}
}

func TestResult_ErrorMidStream(t *testing.T) {
	srv := ollamatest.New(ollamatest.WithStreamError(2, "llama runner process has terminated"))
	defer srv.Close()
	h := newHarness(t, srv, true)

	res, err := h.Complete(context.Background(), "hi", memory.History{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	text, err := res.Collect()
	if !errors.Is(err, ErrInference) {
		t.Errorf("err = %v, want ErrInference", err)
	}
	if text == "" {
		t.Error("partial text should be returned alongside the error")
	}
}

func TestResult_WriteTo(t *testing.T) {
	srv := ollamatest.New()
	defer srv.Close()
	h := newHarness(t, srv, true)

	res := mustComplete(t, h, context.Background())
	var buf bytes.Buffer
	n, err := res.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if buf.String() != srv.Text() || int(n) != len(srv.Text()) {
		t.Errorf("wrote %d bytes %q, want %q", n, buf.String(), srv.Text())
	}
	if res.Text() != srv.Text() {
		t.Errorf("Text() = %q", res.Text())
	}
	if res.Next() {
		t.Error("Next() after WriteTo = true, want false")
	}
	if err := res.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

type slowEngine struct{ engine.Engine }

func (slowEngine) Generate(ctx context.Context, _ engine.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestComplete_TimeoutIsServiceUnavailable(t *testing.T) {
	h, err := Configure(Options{Model: "llama2", Engine: slowEngine{}, RequestTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	_, err = h.Complete(context.Background(), "hi", memory.History{})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("err = %v, want ErrServiceUnavailable", err)
	}
}

func TestComplete_CallerCancelPassesThrough(t *testing.T) {
	h, err := Configure(Options{Model: "llama2", Engine: slowEngine{}, RequestTimeout: time.Minute})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Complete(ctx, "hi", memory.History{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if Kind(err) != "Canceled" {
		t.Errorf("Kind = %q", Kind(err))
	}
}

func TestWithStreaming(t *testing.T) {
	h, _ := Configure(Options{Model: "llama2"})
	s := h.WithStreaming(true)
	if h.Streaming() || !s.Streaming() {
		t.Errorf("Streaming: original %v, copy %v", h.Streaming(), s.Streaming())
	}
}
