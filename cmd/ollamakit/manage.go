package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/ollamakit/internal/api"
	"github.com/kalambet/ollamakit/internal/config"
	"github.com/kalambet/ollamakit/internal/engine"
	"github.com/kalambet/ollamakit/internal/storage"
)

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models available on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		names, err := a.harness.Engine().ListModels(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(names) == 0 {
			fmt.Fprintln(out, "No models installed.")
			return nil
		}
		for _, n := range names {
			marker := " "
			if matchesModel(n, a.harness.Model()) {
				marker = colorize(colorGreen, "*")
			}
			fmt.Fprintf(out, "%s %s\n", marker, n)
		}
		return nil
	},
}

var modelsPullCmd = &cobra.Command{
	Use:   "pull [model]",
	Short: "Download a model (default: the configured one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		model := a.harness.Model()
		if len(args) == 1 {
			model = args[0]
		}
		if err := engine.EnsureReady(cmd.Context(), a.harness.Engine(), []string{model}, true, cmd.ErrOrStderr()); err != nil {
			return err
		}
		printSuccess("Model %s is ready", model)
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsPullCmd)
}

// matchesModel reports whether an installed name such as "llama2:latest"
// is the configured model, given with or without a tag.
func matchesModel(installed, model string) bool {
	return installed == model || strings.HasPrefix(installed, model+":")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse the transcript log",
	Long: `Browse exchanges recorded while storage.record is on. The log is
never read back into a conversation.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withStore(func(store *storage.Store) error {
			sessions, err := store.Sessions(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintf(out, "No sessions recorded in %s.\n", store.Path())
				return nil
			}
			for _, ss := range sessions {
				failed := ""
				if ss.Failed > 0 {
					failed = colorize(colorRed, fmt.Sprintf(" (%d failed)", ss.Failed))
				}
				fmt.Fprintf(out, "%s  %s  %-8s %-16s %d exchanges%s\n",
					colorize(colorCyan, ss.SessionID),
					ss.Started.Local().Format(time.DateTime),
					ss.Mode,
					ss.Model,
					ss.Exchanges,
					failed,
				)
			}
			return nil
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show every exchange of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *storage.Store) error {
			exchanges, err := store.SessionExchanges(args[0])
			if err != nil {
				return err
			}
			if len(exchanges) == 0 {
				return fmt.Errorf("session %s: %w", args[0], storage.ErrNotFound)
			}
			out := cmd.OutOrStdout()
			for _, ex := range exchanges {
				fmt.Fprintf(out, "\n%s %s\n", colorize(colorBold, "You:"), ex.Input)
				if ex.Status == storage.StatusFailed {
					fmt.Fprintln(out, colorize(colorRed, ex.ErrorKind+": "+ex.ErrorText))
					continue
				}
				fmt.Fprintf(out, "%s\n", ex.Response)
			}
			return nil
		})
	},
}

var historyRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recent exchanges across sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withStore(func(store *storage.Store) error {
			exchanges, err := store.RecentExchanges(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(exchanges) == 0 {
				fmt.Fprintln(out, "No exchanges recorded.")
				return nil
			}
			for _, ex := range exchanges {
				fmt.Fprintf(out, "%s  %-8s %-9s %s\n",
					ex.CreatedAt.Local().Format(time.DateTime),
					ex.Mode,
					ex.Status,
					truncate(strings.ReplaceAll(ex.Input, "\n", " "), 80),
				)
			}
			return nil
		})
	},
}

var historyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete recorded exchanges",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes recorded exchanges. Use --confirm to proceed.")
			return nil
		}
		cutoff := time.Now().Add(-olderThan)
		return withStore(func(store *storage.Store) error {
			n, err := store.PurgeBefore(cutoff)
			if err != nil {
				return err
			}
			printSuccess("Deleted %d exchanges", n)
			return nil
		})
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of sessions to list")
	historyRecentCmd.Flags().Int("limit", 20, "maximum number of exchanges to list")
	historyPurgeCmd.Flags().Duration("older-than", 0, "only delete exchanges older than this, e.g. 720h")
	historyPurgeCmd.Flags().Bool("confirm", false, "confirm deletion")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyRecentCmd)
	historyCmd.AddCommand(historyPurgeCmd)
}

// withStore opens the transcript log from the configured data directory.
func withStore(fn func(*storage.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening transcript log: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			printWarning("closing transcript log: %v", err)
		}
	}()
	return fn(store)
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve completions to MCP clients over stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout. Tools: complete,
chat, expand_template, list_models. Logs go to the log file only.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := api.NewMCPServer(api.MCPDeps{
			Harness:   a.harness,
			Store:     a.store,
			SessionID: a.sessionID,
		})
		stdio := server.NewStdioServer(srv)
		a.logger.Info("MCP server started (stdio transport)")
		err = stdio.Listen(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s\n", config.Path())
		for _, k := range config.ShowAll(cfg) {
			line := fmt.Sprintf("  %s = %s", colorize(colorBold, k.Key), k.Value)
			if k.Overridden {
				line += colorize(colorYellow, " (from "+k.EnvVar+")")
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Keys: ` + strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a value from the config file, restoring its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
