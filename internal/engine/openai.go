package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
)

// OpenAIEngine talks to any server exposing the OpenAI chat completions API.
// Ollama serves one under /v1, as do llama.cpp and mlx-lm servers.
type OpenAIEngine struct {
	client openai.Client
}

// NewOpenAIEngine creates an engine for the OpenAI-compatible API rooted at
// baseURL. For Ollama pass the server address; "/v1" is appended when missing.
// Local servers ignore the key, so an empty apiKey is replaced with a placeholder.
func NewOpenAIEngine(baseURL, apiKey string, hc *http.Client) *OpenAIEngine {
	if apiKey == "" {
		apiKey = "ollama"
	}
	if hc == nil {
		hc = &http.Client{}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(openAIBaseURL(baseURL)),
		option.WithHTTPClient(hc),
		option.WithMaxRetries(0),
	}
	return &OpenAIEngine{client: openai.NewClient(opts...)}
}

func openAIBaseURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(u, "/v1") {
		u += "/v1"
	}
	return u + "/"
}

func (e *OpenAIEngine) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := e.client.Chat.Completions.New(ctx, buildChatParams(req))
	if err != nil {
		return "", classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", ErrInference)
	}
	return resp.Choices[0].Message.Content, nil
}

func (e *OpenAIEngine) GenerateStream(ctx context.Context, req Request) (Stream, error) {
	stream := e.client.Chat.Completions.NewStreaming(ctx, buildChatParams(req))
	if err := stream.Err(); err != nil {
		return nil, classifyOpenAI(err)
	}
	return &openAIStream{stream: stream}, nil
}

func (e *OpenAIEngine) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := e.ListModels(ctx)
	return err == nil
}

func (e *OpenAIEngine) ListModels(ctx context.Context) ([]string, error) {
	page, err := e.client.Models.List(ctx)
	if err != nil {
		return nil, classifyOpenAI(err)
	}
	names := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

func (e *OpenAIEngine) HasModel(ctx context.Context, name string) bool {
	models, err := e.ListModels(ctx)
	if err != nil {
		return false
	}
	for _, m := range models {
		if m == name || strings.HasPrefix(m, name+":") {
			return true
		}
	}
	return false
}

func (e *OpenAIEngine) PullModel(_ context.Context, name string, _ func(PullProgress)) error {
	return fmt.Errorf("pulling %s: not supported by the OpenAI-compatible backend", name)
}

func buildChatParams(req Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if v, ok := req.Options["temperature"].(float64); ok {
		params.Temperature = openai.Float(v)
	}
	if v, ok := req.Options["num_predict"].(int); ok && v > 0 {
		params.MaxTokens = openai.Int(int64(v))
	}
	return params
}

type openAIStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	cur    string
}

// Next skips chunks that carry no content (role headers, finish markers).
func (s *openAIStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.cur = chunk.Choices[0].Delta.Content
		return true
	}
	return false
}

func (s *openAIStream) Fragment() string { return s.cur }
func (s *openAIStream) Err() error       { return classifyOpenAI(s.stream.Err()) }
func (s *openAIStream) Close() error     { return s.stream.Close() }

// classifyOpenAI maps openai-go errors onto the engine error kinds: API errors
// are generation failures, network errors mean the service is unavailable.
func classifyOpenAI(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", ErrInference, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrInference, err)
}
