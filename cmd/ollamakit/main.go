package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "dev"

// Global flags. They override the config file and environment.
var (
	flagBaseURL  string
	flagModel    string
	flagBackend  string
	flagNoStream bool
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "ollamakit",
	Short: "Talk to a local Ollama model from the terminal",
	Long: `ollamakit sends prompts to a locally hosted language model and streams
the answers back: one-shot questions, an interactive loop, prompt templates
and conversations with memory.

Examples:
  ollamakit ask "Tell me a joke about a programmer."
  ollamakit repl
  ollamakit joke
  ollamakit chat --persona scientific --base-url http://192.168.1.68:11434`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			noColor = true
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("ollamakit %s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagBaseURL, "base-url", "", "completion service address (default from ollama.base_url)")
	pf.StringVar(&flagModel, "model", "", "model identifier (default from ollama.model)")
	pf.StringVar(&flagBackend, "backend", "", "backend API: ollama or openai")
	pf.BoolVar(&flagNoStream, "no-stream", false, "wait for the full answer instead of streaming it")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		askCmd,
		replCmd,
		templateCmd,
		jokeCmd,
		chatCmd,
		modelsCmd,
		historyCmd,
		mcpCmd,
		configCmd,
		versionCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
