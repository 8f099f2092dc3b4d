package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// tagsJSON builds a /api/tags response with the given model names.
func tagsJSON(names ...string) []byte {
	type entry struct {
		Name string `json:"name"`
	}
	type resp struct {
		Models []entry `json:"models"`
	}
	r := resp{}
	for _, n := range names {
		r.Models = append(r.Models, entry{Name: n})
	}
	b, _ := json.Marshal(r)
	return b
}

func TestIsRunning_Up(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llama2:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
}

func TestIsRunning_Down(t *testing.T) {
	// Point at a closed server to simulate connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	if c.IsRunning(context.Background()) {
		t.Error("IsRunning() = true, want false")
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llama2:latest", "mistral:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}

	want := []string{"llama2:latest", "mistral:latest"}
	if len(models) != len(want) {
		t.Fatalf("got %d models, want %d", len(models), len(want))
	}
	for i, w := range want {
		if models[i] != w {
			t.Errorf("models[%d] = %q, want %q", i, models[i], w)
		}
	}
}

func TestHasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llama2:latest", "mistral:7b"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.HasModel(context.Background(), "llama2") {
		t.Error("HasModel(llama2) = false, want true")
	}
	if !c.HasModel(context.Background(), "mistral:7b") {
		t.Error("HasModel(mistral:7b) = false, want true")
	}
	if c.HasModel(context.Background(), "llama") {
		t.Error("HasModel(llama) = true, want false")
	}
}

func TestGenerate_NonStreaming(t *testing.T) {
	var got GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(GenerateResponse{Model: got.Model, Response: "Go is great!", Done: true})
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Generate(context.Background(), GenerateRequest{Model: "llama2", Prompt: "Tell me about Go", Stream: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Response != "Go is great!" {
		t.Errorf("Response = %q, want %q", resp.Response, "Go is great!")
	}
	if got.Stream {
		t.Error("request stream = true, want false for Generate")
	}
	if got.Prompt != "Tell me about Go" {
		t.Errorf("request prompt = %q", got.Prompt)
	}
}

func TestGenerate_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'nope' not found"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "nope", Prompt: "hi"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.Message != "model 'nope' not found" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestGenerate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "llama2", Prompt: "hi"})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func ndjsonServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Errorf("request stream = false, want true")
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func drain(s *GenerateStream) []string {
	var out []string
	for s.Next() {
		out = append(out, s.Fragment())
	}
	return out
}

func TestGenerateStream_Fragments(t *testing.T) {
	srv := ndjsonServer(t,
		`{"response":"Hello","done":false}`,
		`{"response":"","done":false}`,
		`{"response":", world","done":false}`,
		`{"response":"","done":true,"done_reason":"stop","eval_count":3}`,
	)

	c := New(srv.URL)
	s, err := c.GenerateStream(context.Background(), GenerateRequest{Model: "llama2", Prompt: "hi"})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	defer s.Close()

	got := drain(s)
	if err := s.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if strings.Join(got, "|") != "Hello|, world" {
		t.Errorf("fragments = %q", got)
	}
	if s.Final().DoneReason != "stop" || s.Final().EvalCount != 3 {
		t.Errorf("Final() = %+v", s.Final())
	}
	if s.Next() {
		t.Error("Next() after completion = true, want false")
	}
}

func TestGenerateStream_ErrorLine(t *testing.T) {
	srv := ndjsonServer(t,
		`{"response":"partial","done":false}`,
		`{"error":"out of memory"}`,
	)

	c := New(srv.URL)
	s, err := c.GenerateStream(context.Background(), GenerateRequest{Model: "llama2", Prompt: "hi"})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	defer s.Close()

	got := drain(s)
	if len(got) != 1 || got[0] != "partial" {
		t.Errorf("fragments = %q, want [partial]", got)
	}
	var apiErr *APIError
	if !errors.As(s.Err(), &apiErr) || apiErr.Message != "out of memory" {
		t.Errorf("Err() = %v, want APIError(out of memory)", s.Err())
	}
}

func TestGenerateStream_Truncated(t *testing.T) {
	srv := ndjsonServer(t, `{"response":"cut","done":false}`)

	c := New(srv.URL)
	s, err := c.GenerateStream(context.Background(), GenerateRequest{Model: "llama2", Prompt: "hi"})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	defer s.Close()

	drain(s)
	if !errors.Is(s.Err(), ErrTruncated) {
		t.Errorf("Err() = %v, want ErrTruncated", s.Err())
	}
}

func TestGenerateStream_Malformed(t *testing.T) {
	srv := ndjsonServer(t, `{"response":`+"\n"+`not json`)

	c := New(srv.URL)
	s, err := c.GenerateStream(context.Background(), GenerateRequest{Model: "llama2", Prompt: "hi"})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	defer s.Close()

	drain(s)
	if s.Err() == nil || errors.Is(s.Err(), ErrUnreachable) {
		t.Errorf("Err() = %v, want a decode error", s.Err())
	}
}

func TestPullModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pull" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"status":"pulling manifest"}`+"\n")
		io.WriteString(w, `{"status":"downloading","total":10,"completed":5}`+"\n")
		io.WriteString(w, `{"status":"success"}`+"\n")
	}))
	defer srv.Close()

	var statuses []string
	c := New(srv.URL)
	err := c.PullModel(context.Background(), "llama2", func(p PullProgress) {
		statuses = append(statuses, p.Status)
	})
	if err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if strings.Join(statuses, ",") != "pulling manifest,downloading,success" {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestPullModel_ErrorLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":"pull model manifest: file does not exist"}`+"\n")
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.PullModel(context.Background(), "nope", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
}
