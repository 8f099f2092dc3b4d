package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/ollamakit/internal/harness"
	"github.com/kalambet/ollamakit/internal/memory"
	"github.com/kalambet/ollamakit/internal/prompt"
	"github.com/kalambet/ollamakit/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Harness *harness.Harness
	Store   *storage.Store // optional; exchanges are recorded when set
	// SessionID groups recorded exchanges. Generated when empty.
	SessionID string
}

// NewMCPServer creates an MCP server with the completion tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.SessionID == "" {
		deps.SessionID = uuid.New().String()
	}
	convs := newConversations(deps.Harness)

	s := server.NewMCPServer(
		"ollamakit",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("ollamakit: completions and conversations backed by a local Ollama model."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("complete",
			mcp.WithDescription("Send a prompt to the local model and return the full completion."),
			mcp.WithString("prompt", mcp.Description("Prompt text. Fills {input} or the only variable when a template is given.")),
			mcp.WithString("template", mcp.Description("Optional built-in template name, e.g. joke")),
			mcp.WithObject("vars", mcp.Description("Template variables as a name to value object")),
		),
		mcpComplete(deps),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Continue a conversation with the local model. Omit conversation_id to start a new one."),
			mcp.WithString("message", mcp.Description("The human's message"), mcp.Required()),
			mcp.WithString("conversation_id", mcp.Description("Conversation to continue")),
			mcp.WithString("persona", mcp.Description("Conversation template for a new conversation: conversation, friendly or scientific")),
		),
		mcpChat(deps, convs),
	)

	s.AddTool(
		mcp.NewTool("expand_template",
			mcp.WithDescription("Substitute {name} placeholders in a template without calling the model."),
			mcp.WithString("template", mcp.Description("Template text, or a built-in template name"), mcp.Required()),
			mcp.WithObject("vars", mcp.Description("Template variables as a name to value object")),
		),
		mcpExpandTemplate(),
	)

	s.AddTool(
		mcp.NewTool("list_models",
			mcp.WithDescription("List the models available on the local server."),
		),
		mcpListModels(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"ollamakit://templates",
			"Built-in Templates",
			mcp.WithResourceDescription("Built-in prompt templates by name"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTemplates(),
	)

	s.AddResource(
		mcp.NewResource(
			"ollamakit://recent",
			"Recent Exchanges",
			mcp.WithResourceDescription("Last 10 recorded exchanges (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

// conversations holds the chat tool's conversations for the server's lifetime.
type conversations struct {
	h  *harness.Harness
	mu sync.Mutex
	m  map[string]*lockedConversation
}

type lockedConversation struct {
	mu   sync.Mutex
	conv *harness.Conversation
}

func newConversations(h *harness.Harness) *conversations {
	return &conversations{h: h, m: make(map[string]*lockedConversation)}
}

func (c *conversations) get(id, persona string) (string, *lockedConversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id != "" {
		lc, ok := c.m[id]
		if !ok {
			return "", nil, fmt.Errorf("unknown conversation_id %q", id)
		}
		return id, lc, nil
	}

	if persona == "" {
		persona = "conversation"
	}
	tmpl, err := prompt.Builtin(persona)
	if err != nil {
		return "", nil, err
	}
	conv, err := c.h.NewConversation(tmpl)
	if err != nil {
		return "", nil, err
	}
	id = uuid.New().String()
	lc := &lockedConversation{conv: conv}
	c.m[id] = lc
	return id, lc, nil
}

func mcpComplete(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := req.GetString("prompt", "")
		name := req.GetString("template", "")
		if text == "" && name == "" {
			return mcpError("prompt or template is required"), nil
		}

		input := text
		if name != "" {
			tmpl, err := prompt.Builtin(name)
			if err != nil {
				return mcpError(describe(err)), nil
			}
			vars := stringVars(req.GetArguments()["vars"])
			if len(vars) == 0 && text != "" {
				input, err = tmpl.ExpandInput(text)
			} else {
				input, err = tmpl.Expand(vars)
			}
			if err != nil {
				return mcpError(describe(err)), nil
			}
		}

		h := deps.Harness.WithStreaming(false)
		start := time.Now()
		res, err := h.Complete(ctx, input, memory.History{})
		var out string
		if err == nil {
			out, err = res.Collect()
		}
		record(deps, "mcp", input, h.EffectivePrompt(input, memory.History{}), out, err, start)
		if err != nil {
			return mcpError(describe(err)), nil
		}
		return mcpText(out), nil
	}
}

func mcpChat(deps MCPDeps, convs *conversations) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		id, lc, err := convs.get(req.GetString("conversation_id", ""), req.GetString("persona", ""))
		if err != nil {
			return mcpError(describe(err)), nil
		}

		lc.mu.Lock()
		defer lc.mu.Unlock()

		start := time.Now()
		reply, err := lc.conv.Turn(ctx, message, io.Discard)
		record(deps, "chat", message, reply.Prompt, reply.Text, err, start)
		if err != nil {
			return mcpError(describe(err)), nil
		}

		b, err := json.Marshal(struct {
			ConversationID string `json:"conversation_id"`
			Reply          string `json:"reply"`
			Exchanges      int    `json:"exchanges"`
		}{id, reply.Text, lc.conv.History().Exchanges()})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpExpandTemplate() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("template")
		if err != nil {
			return mcpError("template is required"), nil
		}
		if tmpl, err := prompt.Builtin(text); err == nil {
			text = tmpl.Source()
		}

		out, err := harness.ExpandTemplate(text, stringVars(req.GetArguments()["vars"]))
		if err != nil {
			return mcpError(describe(err)), nil
		}
		return mcpText(out), nil
	}
}

func mcpListModels(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		models, err := deps.Harness.Engine().ListModels(ctx)
		if err != nil {
			return mcpError(describe(err)), nil
		}
		b, err := json.Marshal(models)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal models: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceTemplates() server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		out := make(map[string]string)
		for _, name := range prompt.BuiltinNames() {
			tmpl, err := prompt.Builtin(name)
			if err != nil {
				return nil, err
			}
			out[name] = tmpl.Source()
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal templates: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		var exchanges []storage.Exchange
		if deps.Store != nil {
			var err error
			exchanges, err = deps.Store.RecentExchanges(10)
			if err != nil {
				return nil, fmt.Errorf("failed to get recent exchanges: %w", err)
			}
		}

		type exchangeSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Model     string `json:"model"`
			Input     string `json:"input"`
			Status    string `json:"status"`
		}

		summaries := make([]exchangeSummary, len(exchanges))
		for i, ex := range exchanges {
			input := ex.Input
			if utf8.RuneCountInString(input) > 200 {
				runes := []rune(input)
				input = string(runes[:200]) + "..."
			}
			summaries[i] = exchangeSummary{
				ID:        ex.ID,
				CreatedAt: ex.CreatedAt.Format(time.RFC3339),
				Model:     ex.Model,
				Input:     input,
				Status:    ex.Status,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal exchanges: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func record(deps MCPDeps, mode, input, effective, response string, err error, start time.Time) {
	if deps.Store == nil {
		return
	}
	ex := storage.Exchange{
		ID:        uuid.New().String(),
		SessionID: deps.SessionID,
		CreatedAt: start,
		Mode:      mode,
		Model:     deps.Harness.Model(),
		BaseURL:   deps.Harness.BaseURL(),
		Input:     input,
		Prompt:    effective,
		Response:  response,
		Status:    storage.StatusCompleted,
		Elapsed:   time.Since(start),
	}
	if err != nil {
		ex.Status = storage.StatusFailed
		ex.ErrorKind = harness.Kind(err)
		ex.ErrorText = err.Error()
	}
	if err := deps.Store.SaveExchange(ex); err != nil {
		slog.Warn("mcp: failed to record exchange", "error", err)
	}
}

// stringVars converts a JSON object argument into template variables.
func stringVars(raw any) map[string]string {
	obj, ok := raw.(map[string]any)
	if !ok {
		return map[string]string{}
	}
	vars := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := v.(string); ok {
			vars[k] = s
		} else {
			vars[k] = fmt.Sprint(v)
		}
	}
	return vars
}

func describe(err error) string {
	return fmt.Sprintf("%s: %v", harness.Kind(err), err)
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
