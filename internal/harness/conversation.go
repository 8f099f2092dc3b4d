package harness

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kalambet/ollamakit/internal/memory"
	"github.com/kalambet/ollamakit/internal/prompt"
)

// Conversation chains completions through a {history}/{input} template,
// accumulating the exchanges in memory. It is not safe for concurrent use.
type Conversation struct {
	h       *Harness
	tmpl    *prompt.Template
	history memory.History
}

// NewConversation starts an empty conversation. tmpl must reference {input}
// and may reference {history}; a nil tmpl selects the default conversation
// prompt.
func (h *Harness) NewConversation(tmpl *prompt.Template) (*Conversation, error) {
	if tmpl == nil {
		tmpl = prompt.MustParse(prompt.Friendly)
	}
	if !prompt.IsConversation(tmpl) {
		return nil, fmt.Errorf("%w: conversation template must use {input} and only {history} besides it, got %v",
			ErrTemplate, tmpl.Variables())
	}
	return &Conversation{h: h, tmpl: tmpl}, nil
}

// History returns the exchanges so far.
func (c *Conversation) History() memory.History { return c.history }

// Reset forgets all exchanges.
func (c *Conversation) Reset() { c.history = memory.History{} }

// Turn sends input in the context of the conversation and streams the answer
// to sink. The exchange is added to the history only when the completion
// succeeds.
func (c *Conversation) Turn(ctx context.Context, input string, sink io.Writer) (Reply, error) {
	p, err := c.tmpl.Expand(map[string]string{
		"history": c.h.composer.Fit(c.history).String(),
		"input":   input,
	})
	if err != nil {
		return Reply{}, err
	}

	// The template already places the history.
	reply, err := c.h.Send(ctx, p, memory.History{}, sink)
	if err != nil {
		return reply, err
	}
	c.history = c.history.Append(input, strings.TrimSpace(reply.Text))
	return reply, nil
}
