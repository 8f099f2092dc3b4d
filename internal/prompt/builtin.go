package prompt

import (
	"fmt"
	"sort"
)

// Joke asks for a joke about a single subject.
const Joke = "Tell me a joke about {whom}."

// Friendly is the default conversation prompt.
const Friendly = `The following is a friendly conversation between a human and an AI. ` +
	`The AI is talkative and provides lots of specific details from its context. ` +
	`If the AI does not know the answer to a question, it truthfully says it does not know.

Current conversation:
{history}
Human: {input}
AI:`

// Scientific is a terse, professorial conversation prompt.
const Scientific = `The following is a scientific conversation between a human and an AI. ` +
	`The AI uses a professorial tone. ` +
	`The AI is precise and answers in short sentences. ` +
	`If the AI does not know the answer to a question, it truthfully says it does not know.

Current conversation:
{history}
Human: {input}
AI:`

var builtins = map[string]*Template{
	"joke":         MustParse(Joke),
	"conversation": MustParse(Friendly),
	"friendly":     MustParse(Friendly),
	"scientific":   MustParse(Scientific),
}

// Builtin returns the named built-in template.
func Builtin(name string) (*Template, error) {
	t, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w: no built-in template %q (have %v)", ErrTemplate, name, BuiltinNames())
	}
	return t, nil
}

// BuiltinNames lists the built-in template names in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsConversation reports whether t can drive a conversation: it must take
// {input}, and may take {history}, but nothing else.
func IsConversation(t *Template) bool {
	if !t.Has("input") {
		return false
	}
	for _, v := range t.vars {
		if v != "input" && v != "history" {
			return false
		}
	}
	return true
}
