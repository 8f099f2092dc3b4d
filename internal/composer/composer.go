package composer

import (
	"github.com/kalambet/ollamakit/internal/memory"
)

// Composer assembles the effective prompt sent to the model from the
// conversation history and the current prompt.
type Composer struct {
	// MaxHistoryTokens caps the history injected ahead of the prompt.
	// Zero or negative means no cap.
	MaxHistoryTokens int
}

// New creates a Composer with the given history token budget.
func New(maxHistoryTokens int) *Composer {
	return &Composer{MaxHistoryTokens: maxHistoryTokens}
}

// Compose prefixes prompt with the serialized history. The prompt itself is
// never truncated; when over budget, whole exchanges are dropped from the
// oldest end.
func (c *Composer) Compose(h memory.History, prompt string) string {
	h = c.Fit(h)
	if h.Empty() {
		return prompt
	}
	return h.String() + "\n" + prompt
}

// Fit returns the longest suffix of h, in whole exchanges, whose rendering
// fits the token budget.
func (c *Composer) Fit(h memory.History) memory.History {
	if c == nil || c.MaxHistoryTokens <= 0 {
		return h
	}
	for n := h.Exchanges(); n > 0; n-- {
		w := h.Window(n)
		if EstimateTokens(w.String()) <= c.MaxHistoryTokens {
			return w
		}
	}
	return memory.History{}
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
