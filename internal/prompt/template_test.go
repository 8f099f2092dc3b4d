package prompt

import (
	"errors"
	"strings"
	"testing"
)

func TestExpand_Joke(t *testing.T) {
	got, err := Expand("Tell me a joke about {whom}.", map[string]string{"whom": "programmers"})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got != "Tell me a joke about programmers." {
		t.Errorf("got %q", got)
	}
}

func TestExpand_MissingVariable(t *testing.T) {
	_, err := Expand("Tell me a joke about {whom}.", map[string]string{})
	if !errors.Is(err, ErrTemplate) {
		t.Fatalf("err = %v, want ErrTemplate", err)
	}
	var mv *MissingVariableError
	if !errors.As(err, &mv) {
		t.Fatalf("err = %T, want *MissingVariableError", err)
	}
	if len(mv.Names) != 1 || mv.Names[0] != "whom" {
		t.Errorf("Names = %v, want [whom]", mv.Names)
	}
}

func TestExpand_ReportsAllMissing(t *testing.T) {
	_, err := Expand("{a} {b} {a} {c}", map[string]string{"b": "x"})
	var mv *MissingVariableError
	if !errors.As(err, &mv) {
		t.Fatalf("err = %v", err)
	}
	if strings.Join(mv.Names, ",") != "a,c" {
		t.Errorf("Names = %v, want [a c]", mv.Names)
	}
}

func TestExpand_ExtraVariablesIgnored(t *testing.T) {
	got, err := Expand("Hi {name}", map[string]string{"name": "Ada", "unused": "x"})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got != "Hi Ada" {
		t.Errorf("got %q", got)
	}
}

func TestExpand_RepeatedPlaceholder(t *testing.T) {
	got, err := Expand("{x}-{x}", map[string]string{"x": "go"})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got != "go-go" {
		t.Errorf("got %q", got)
	}
}

func TestExpand_ValuesAreNotReexpanded(t *testing.T) {
	got, err := Expand("say {what}", map[string]string{"what": "{whom}"})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got != "say {whom}" {
		t.Errorf("got %q", got)
	}
}

func TestParse_EscapedBraces(t *testing.T) {
	tmpl, err := Parse(`{{"key": "{value}"}}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v := tmpl.Variables(); len(v) != 1 || v[0] != "value" {
		t.Errorf("Variables() = %v", v)
	}
	got, err := tmpl.Expand(map[string]string{"value": "42"})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got != `{"key": "42"}` {
		t.Errorf("got %q", got)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, text := range []string{
		"Tell me about {whom",
		"{}",
		"{1st}",
		"{two words}",
		"{a-b}",
		"closing } alone",
	} {
		if _, err := Parse(text); !errors.Is(err, ErrTemplate) {
			t.Errorf("Parse(%q) err = %v, want ErrTemplate", text, err)
		}
	}
}

func TestVariables_OrderedUnique(t *testing.T) {
	tmpl := MustParse("{history}\nHuman: {input}\n{history}")
	if got := strings.Join(tmpl.Variables(), ","); got != "history,input" {
		t.Errorf("Variables() = %s", got)
	}
}

func TestExpand_NoUnresolvedTokens(t *testing.T) {
	for _, text := range []string{Joke, Friendly, Scientific, "{a}{b}{c}", "plain"} {
		tmpl := MustParse(text)
		vars := make(map[string]string)
		for _, v := range tmpl.Variables() {
			vars[v] = "value"
		}
		got, err := tmpl.Expand(vars)
		if err != nil {
			t.Fatalf("Expand(%q): %v", text, err)
		}
		for _, v := range tmpl.Variables() {
			if strings.Contains(got, "{"+v+"}") {
				t.Errorf("Expand(%q) left {%s} unresolved: %q", text, v, got)
			}
		}
	}
}

func TestExpandInput(t *testing.T) {
	tests := []struct {
		text    string
		want    string
		wantErr bool
	}{
		{Joke, "Tell me a joke about cats.", false},
		{"Q: {input} ({style})", "", true},
		{"Human: {input}", "Human: cats", false},
		{"no placeholders", "no placeholders", false},
		{"{a} and {b}", "", true},
	}
	for _, tt := range tests {
		got, err := MustParse(tt.text).ExpandInput("cats")
		if tt.wantErr {
			if !errors.Is(err, ErrTemplate) {
				t.Errorf("ExpandInput(%q) err = %v, want ErrTemplate", tt.text, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ExpandInput(%q): %v", tt.text, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExpandInput(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestBuiltin(t *testing.T) {
	for _, name := range BuiltinNames() {
		if _, err := Builtin(name); err != nil {
			t.Errorf("Builtin(%q): %v", name, err)
		}
	}
	if _, err := Builtin("pirate"); !errors.Is(err, ErrTemplate) {
		t.Errorf("Builtin(pirate) err = %v, want ErrTemplate", err)
	}

	for _, name := range []string{"conversation", "friendly", "scientific"} {
		tmpl, _ := Builtin(name)
		if !IsConversation(tmpl) {
			t.Errorf("%s is not a conversation template", name)
		}
	}
	joke, _ := Builtin("joke")
	if IsConversation(joke) {
		t.Error("joke should not be a conversation template")
	}
}
