package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/ollamakit/internal/attach"
	"github.com/kalambet/ollamakit/internal/harness"
	"github.com/kalambet/ollamakit/internal/memory"
	"github.com/kalambet/ollamakit/internal/prompt"
	"github.com/kalambet/ollamakit/internal/session"
)

const defaultQuestion = "Tell me a joke about a programmer."

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and print the answer",
	Long: `Ask a single question and print the answer.

Without a question the classic "` + defaultQuestion + `" is sent.

Examples:
  ollamakit ask
  ollamakit ask --no-stream "Why is the sky blue?"
  ollamakit ask --attach notes.md "Summarize these notes"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			question = defaultQuestion
		}
		paths, _ := cmd.Flags().GetStringSlice("attach")

		var docs []attach.Document
		for _, p := range paths {
			doc, err := attach.Load(p)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if err := a.ensureReady(ctx, cmd.ErrOrStderr()); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n\n", colorize(colorCyan, "You:"), question)
		return a.sendOnce(ctx, "ask", question, attach.Prepend(docs, question), out)
	},
}

func init() {
	askCmd.Flags().StringSlice("attach", nil, "file to prepend as context (.txt, .md, .html, .pdf); repeatable")
}

// sendOnce completes a single prompt, writes the answer to out and records
// the exchange.
func (a *app) sendOnce(ctx context.Context, mode, input, p string, out io.Writer) error {
	started := time.Now()
	reply, err := a.harness.Send(ctx, p, memory.History{}, out)
	fmt.Fprintln(out)

	if r := a.recorder(mode); r != nil {
		ex := session.Exchange{
			Input:    input,
			Prompt:   reply.Prompt,
			Response: reply.Text,
			Err:      err,
			Started:  started,
			Elapsed:  time.Since(started),
		}
		if rerr := r.Record(context.WithoutCancel(ctx), ex); rerr != nil {
			a.logger.Warn("recording exchange failed", "error", rerr)
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", harness.Kind(err), err)
	}
	return nil
}

// runLoop reads lines from the command's input until EOF or interrupt,
// handing each to turn.
func (a *app) runLoop(cmd *cobra.Command, mode string, turn session.TurnFunc) error {
	ctx := cmd.Context()
	if err := a.ensureReady(ctx, cmd.ErrOrStderr()); err != nil {
		return err
	}

	loop := &session.Loop{
		Input:       session.NewLineSource(cmd.InOrStdin()),
		Output:      cmd.OutOrStdout(),
		Prompt:      "\n\n" + colorize(colorCyan, "You:") + " ",
		Turn:        turn,
		Recorder:    a.recorder(mode),
		ReportError: reportTurnError,
		Logger:      a.logger,
	}
	err := loop.Run(ctx)
	a.logger.Info("session ended", "session", a.sessionID, "turns", loop.Turns())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sendTurn sends each line as built by build, without history. A nil build
// sends the line as is.
func sendTurn(h *harness.Harness, build func(line string) (string, error)) session.TurnFunc {
	return func(ctx context.Context, input string, out io.Writer) (session.Reply, error) {
		p := input
		if build != nil {
			var err error
			if p, err = build(input); err != nil {
				return session.Reply{}, err
			}
		}
		r, err := h.Send(ctx, p, memory.History{}, out)
		return session.Reply{Prompt: r.Prompt, Text: r.Text}, err
	}
}

// --- repl ---

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Ask questions in a loop, without memory",
	Long: `Read questions line by line and stream each answer. Every question is
sent on its own; nothing from earlier turns is remembered. End with Ctrl-D.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.runLoop(cmd, "repl", sendTurn(a.harness, nil))
	},
}

// --- template ---

var templateCmd = &cobra.Command{
	Use:   "template <name-or-text>",
	Short: "Expand a prompt template and send it",
	Long: `Expand a prompt template and send it to the model.

The template is a built-in name (` + strings.Join(prompt.BuiltinNames(), ", ") + `) or
literal text with {name} placeholders; write {{ and }} for literal braces.
When --var binds every placeholder the prompt is sent once. Otherwise each
input line fills {input}, or the single unbound placeholder.

Examples:
  ollamakit template joke --var whom=cats
  ollamakit template "Translate to French: {input}"
  ollamakit template --file review.tmpl --var lang=Go`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		rawVars, _ := cmd.Flags().GetStringArray("var")

		var (
			tmpl *prompt.Template
			err  error
		)
		switch {
		case file != "" && len(args) > 0:
			return fmt.Errorf("give either a template or --file, not both")
		case file != "":
			data, rerr := os.ReadFile(file)
			if rerr != nil {
				return fmt.Errorf("reading template: %w", rerr)
			}
			tmpl, err = prompt.Parse(string(data))
		case len(args) == 1:
			tmpl, err = resolveTemplate(args[0])
		default:
			return fmt.Errorf("a template name or text is required")
		}
		if err != nil {
			return err
		}

		vars, err := parseVars(rawVars)
		if err != nil {
			return err
		}
		return runTemplate(cmd, tmpl, vars)
	},
}

func init() {
	templateCmd.Flags().StringArray("var", nil, "template variable as name=value; repeatable")
	templateCmd.Flags().String("file", "", "read the template text from a file")
}

// --- joke ---

var jokeCmd = &cobra.Command{
	Use:   "joke [whom]",
	Short: "Tell jokes about whatever you type",
	Long: `Shorthand for "template joke": "Tell me a joke about {whom}."

With an argument one joke is told; otherwise each input line is a subject.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tmpl, err := prompt.Builtin("joke")
		if err != nil {
			return err
		}
		vars := map[string]string{}
		if whom := strings.TrimSpace(strings.Join(args, " ")); whom != "" {
			vars["whom"] = whom
		}
		return runTemplate(cmd, tmpl, vars)
	},
}

// resolveTemplate looks source up among the built-ins and otherwise parses it
// as template text.
func resolveTemplate(source string) (*prompt.Template, error) {
	if t, err := prompt.Builtin(source); err == nil {
		return t, nil
	}
	return prompt.Parse(source)
}

func parseVars(raw []string) (map[string]string, error) {
	vars := make(map[string]string, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --var %q: want name=value", kv)
		}
		vars[strings.TrimSpace(name)] = value
	}
	return vars, nil
}

// unbound lists the template's variables without a value in vars.
func unbound(t *prompt.Template, vars map[string]string) []string {
	var missing []string
	for _, name := range t.Variables() {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// bindLine expands t with vars plus line, which fills {input} when that is
// unbound and otherwise the single unbound variable. Anything still missing
// is a template error.
func bindLine(t *prompt.Template, vars map[string]string, line string) (string, error) {
	bound := make(map[string]string, len(vars)+1)
	maps.Copy(bound, vars)
	missing := unbound(t, vars)
	switch {
	case t.Has("input") && !hasKey(vars, "input"):
		bound["input"] = line
	case len(missing) == 1:
		bound[missing[0]] = line
	}
	return t.Expand(bound)
}

func hasKey(m map[string]string, k string) bool {
	_, ok := m[k]
	return ok
}

func runTemplate(cmd *cobra.Command, tmpl *prompt.Template, vars map[string]string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(unbound(tmpl, vars)) == 0 {
		p, err := tmpl.Expand(vars)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := a.ensureReady(ctx, cmd.ErrOrStderr()); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n\n", colorize(colorCyan, "You:"), p)
		return a.sendOnce(ctx, "template", p, p, out)
	}

	return a.runLoop(cmd, "template", sendTurn(a.harness, func(line string) (string, error) {
		return bindLine(tmpl, vars, line)
	}))
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Hold a conversation that remembers earlier turns",
	Long: `Hold a conversation with the model. Each prompt carries the conversation
so far, formatted by a persona template with {history} and {input}.
History lives for this run only. End with Ctrl-D.

Personas: conversation (default), friendly, scientific.

Examples:
  ollamakit chat
  ollamakit chat --persona scientific --base-url http://192.168.1.68:11434
  ollamakit chat --persona-file pirate.tmpl`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		persona, _ := cmd.Flags().GetString("persona")
		personaFile, _ := cmd.Flags().GetString("persona-file")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if persona == "" {
			persona = a.cfg.Chat.Persona
		}
		tmpl, err := loadPersona(persona, personaFile)
		if err != nil {
			return err
		}
		conv, err := a.harness.NewConversation(tmpl)
		if err != nil {
			return err
		}

		return a.runLoop(cmd, "chat", func(ctx context.Context, input string, out io.Writer) (session.Reply, error) {
			r, err := conv.Turn(ctx, input, out)
			return session.Reply{Prompt: r.Prompt, Text: r.Text}, err
		})
	},
}

func init() {
	chatCmd.Flags().String("persona", "", "built-in persona template (default from chat.persona)")
	chatCmd.Flags().String("persona-file", "", "read the persona template from a file")
}

func loadPersona(name, file string) (*prompt.Template, error) {
	if file == "" {
		return prompt.Builtin(name)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading persona: %w", err)
	}
	return prompt.Parse(string(data))
}
