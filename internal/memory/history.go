// Package memory holds the in-process conversation history.
package memory

import "strings"

// Speaker identifies who produced an utterance.
type Speaker string

const (
	Human Speaker = "Human"
	AI    Speaker = "AI"
)

// Entry is one utterance in a conversation.
type Entry struct {
	Speaker Speaker
	Text    string
}

// History is an ordered, append-only record of a conversation. The zero value
// is an empty history. Values are never modified in place: Append returns a
// new History and leaves the receiver as it was.
type History struct {
	entries []Entry
}

// Append returns a copy of h with the human utterance and the model's reply
// appended, in that order.
func (h History) Append(human, ai string) History {
	out := make([]Entry, len(h.entries), len(h.entries)+2)
	copy(out, h.entries)
	out = append(out, Entry{Speaker: Human, Text: human}, Entry{Speaker: AI, Text: ai})
	return History{entries: out}
}

// Len returns the number of utterances.
func (h History) Len() int { return len(h.entries) }

// Exchanges returns the number of human/AI pairs.
func (h History) Exchanges() int { return len(h.entries) / 2 }

// Empty reports whether the history has no utterances.
func (h History) Empty() bool { return len(h.entries) == 0 }

// Entries returns a copy of the utterances in order.
func (h History) Entries() []Entry {
	return append([]Entry(nil), h.entries...)
}

// Window returns the last n exchanges. n <= 0 yields an empty history.
func (h History) Window(n int) History {
	if n <= 0 {
		return History{}
	}
	if keep := 2 * n; keep < len(h.entries) {
		return History{entries: h.entries[len(h.entries)-keep:]}
	}
	return h
}

// String renders the history as "Speaker: text" lines.
func (h History) String() string {
	var sb strings.Builder
	for i, e := range h.entries {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(string(e.Speaker))
		sb.WriteString(": ")
		sb.WriteString(e.Text)
	}
	return sb.String()
}
