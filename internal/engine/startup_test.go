package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

type mockEngine struct {
	isRunning bool

	mu     sync.Mutex
	models map[string]bool
	pulled []string
}

func (m *mockEngine) Generate(_ context.Context, _ Request) (string, error) { return "", nil }
func (m *mockEngine) GenerateStream(_ context.Context, _ Request) (Stream, error) {
	return TextStream(""), nil
}
func (m *mockEngine) IsRunning(_ context.Context) bool { return m.isRunning }
func (m *mockEngine) ListModels(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for n := range m.models {
		names = append(names, n)
	}
	return names, nil
}
func (m *mockEngine) HasModel(_ context.Context, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.models[name]
}
func (m *mockEngine) PullModel(_ context.Context, name string, cb func(PullProgress)) error {
	m.mu.Lock()
	m.pulled = append(m.pulled, name)
	m.mu.Unlock()
	if cb != nil {
		cb(PullProgress{Status: "downloading", Total: 4, Completed: 2})
		cb(PullProgress{Status: "success"})
	}
	return nil
}

func TestEnsureReady_AllModelsPresent(t *testing.T) {
	m := &mockEngine{
		isRunning: true,
		models:    map[string]bool{"llama2": true, "mistral": true},
	}
	err := EnsureReady(context.Background(), m, []string{"llama2", "mistral", "llama2"}, true, io.Discard)
	if err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 0 {
		t.Errorf("expected no pulls, got %v", m.pulled)
	}
}

func TestEnsureReady_PullsMissing(t *testing.T) {
	m := &mockEngine{
		isRunning: true,
		models:    map[string]bool{"llama2": true},
	}
	var out bytes.Buffer
	err := EnsureReady(context.Background(), m, []string{"llama2", "mistral"}, true, &out)
	if err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 1 || m.pulled[0] != "mistral" {
		t.Errorf("expected pull of mistral, got %v", m.pulled)
	}
	if !strings.Contains(out.String(), "downloading 50%") {
		t.Errorf("progress output missing percentage:\n%s", out.String())
	}
}

func TestEnsureReady_MissingWithoutPull(t *testing.T) {
	m := &mockEngine{isRunning: true, models: map[string]bool{}}
	err := EnsureReady(context.Background(), m, []string{"llama2"}, false, io.Discard)
	if err == nil {
		t.Fatal("expected error for missing model")
	}
	if len(m.pulled) != 0 {
		t.Errorf("expected no pulls, got %v", m.pulled)
	}
}

func TestEnsureReady_EngineDown(t *testing.T) {
	m := &mockEngine{isRunning: false, models: map[string]bool{}}
	err := EnsureReady(context.Background(), m, []string{"llama2"}, true, io.Discard)
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("err = %v, want ErrServiceUnavailable", err)
	}
}
