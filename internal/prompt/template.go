// Package prompt parses and expands text templates with {name} placeholders.
//
// A placeholder is a name matching [A-Za-z_][A-Za-z0-9_]* between single
// braces. Doubled braces ("{{" and "}}") produce a literal brace.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTemplate is matched by every parse and expansion failure.
var ErrTemplate = errors.New("template error")

// MissingVariableError reports placeholders that had no value during expansion.
type MissingVariableError struct {
	Names []string
}

func (e *MissingVariableError) Error() string {
	quoted := make([]string, len(e.Names))
	for i, n := range e.Names {
		quoted[i] = "{" + n + "}"
	}
	return fmt.Sprintf("template error: no value for %s", strings.Join(quoted, ", "))
}

// Is makes errors.Is(err, ErrTemplate) true for missing variables.
func (e *MissingVariableError) Is(target error) bool { return target == ErrTemplate }

type segment struct {
	text string
	name string // placeholder name; empty for literal text
}

// Template is a parsed template. It is immutable and safe for concurrent use.
type Template struct {
	source   string
	segments []segment
	vars     []string
}

// Parse parses text into a Template.
func Parse(text string) (*Template, error) {
	t := &Template{source: text}
	seen := make(map[string]bool)

	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated placeholder at offset %d", ErrTemplate, i)
			}
			name := text[i+1 : i+1+end]
			if !validName(name) {
				return nil, fmt.Errorf("%w: invalid placeholder {%s} at offset %d", ErrTemplate, name, i)
			}
			flush()
			t.segments = append(t.segments, segment{name: name})
			if !seen[name] {
				seen[name] = true
				t.vars = append(t.vars, name)
			}
			i += end + 1
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("%w: unmatched '}' at offset %d", ErrTemplate, i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return t, nil
}

// MustParse is like Parse but panics on error. Intended for package-level templates.
func MustParse(text string) *Template {
	t, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return t
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Source returns the text the template was parsed from.
func (t *Template) Source() string { return t.source }

// Variables returns the placeholder names in order of first appearance.
func (t *Template) Variables() []string {
	return append([]string(nil), t.vars...)
}

// Has reports whether the template references the named variable.
func (t *Template) Has(name string) bool {
	for _, v := range t.vars {
		if v == name {
			return true
		}
	}
	return false
}

// Expand substitutes every placeholder. All missing names are reported
// together in a *MissingVariableError. Variables the template does not
// reference are ignored.
func (t *Template) Expand(vars map[string]string) (string, error) {
	var missing []string
	for _, name := range t.vars {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", &MissingVariableError{Names: missing}
	}

	var sb strings.Builder
	for _, s := range t.segments {
		if s.name == "" {
			sb.WriteString(s.text)
		} else {
			sb.WriteString(vars[s.name])
		}
	}
	return sb.String(), nil
}

// ExpandInput binds a single line of user input to the template. The input
// fills {input} when the template has it, otherwise the template's only
// variable. Templates with several variables and no {input} cannot be
// driven from one line.
func (t *Template) ExpandInput(input string) (string, error) {
	switch {
	case t.Has("input"):
		return t.Expand(map[string]string{"input": input})
	case len(t.vars) == 1:
		return t.Expand(map[string]string{t.vars[0]: input})
	case len(t.vars) == 0:
		return t.source, nil
	default:
		return "", fmt.Errorf("%w: template has variables %s; a single input can fill only one", ErrTemplate, strings.Join(t.vars, ", "))
	}
}

// Expand parses text and expands it with vars in one step.
func Expand(text string, vars map[string]string) (string, error) {
	t, err := Parse(text)
	if err != nil {
		return "", err
	}
	return t.Expand(vars)
}
