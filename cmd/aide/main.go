package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rfenwick/aide/internal/client"
	"github.com/rfenwick/aide/internal/config"
	"github.com/rfenwick/aide/internal/console"
	"github.com/rfenwick/aide/internal/core"
	"github.com/rfenwick/aide/internal/log"
	"github.com/rfenwick/aide/internal/provider"
	"github.com/rfenwick/aide/internal/session"
	"github.com/rfenwick/aide/internal/store"
	"github.com/rfenwick/aide/internal/tool"

	// Import providers for registration
	_ "github.com/rfenwick/aide/internal/provider/anthropic"
	_ "github.com/rfenwick/aide/internal/provider/openai"
)

var version = "0.1.0"

var (
	promptFlag       string
	conversationFlag string
	modelFlag        string
	providerFlag     string
)

func init() {
	// Load .env if present (silent fail if not found)
	_ = godotenv.Load()

	// Debug logging is enabled via AIDE_DEBUG=1
	_ = log.Init()

	rootCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Send a single prompt and exit")
	rootCmd.Flags().StringVarP(&conversationFlag, "conversation", "c", "", "Conversation ID to resume")
	rootCmd.Flags().StringVar(&modelFlag, "model", "", "Model ID override")
	rootCmd.Flags().StringVar(&providerFlag, "provider", "", "Provider override (anthropic, openai)")
}

func main() {
	defer log.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "aide [message]",
	Short:   "aide - AI coding agent for the terminal",
	Version: version,
	Long: `aide is an AI coding agent for the terminal.

Interactive mode:
  aide                     Start a conversation

Non-interactive mode:
  aide "your message"      Send a message directly
  echo "message" | aide    Send a message via stdin
  aide -p "prompt"         Send a prompt flag`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := context.Background()

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}

		settings, err := config.Load(cwd)
		if err != nil {
			return err
		}
		if providerFlag != "" {
			settings.Provider = providerFlag
		}
		if modelFlag != "" {
			settings.Model = modelFlag
		}

		engine, err := buildEngine(ctx, settings)
		if err != nil {
			return err
		}

		convID := conversationFlag
		if convID == "" {
			convID = uuid.NewString()
		}
		if err := engine.Open(convID, session.Config{
			Provider: settings.Provider,
			Model:    settings.Model,
			Cwd:      cwd,
		}); err != nil {
			return err
		}

		cons := console.New(engine, convID)
		if msg := inputMessage(args); msg != "" {
			return cons.RunOnce(ctx, msg)
		}
		return cons.Run(ctx)
	},
}

// buildEngine wires the stores, provider, and pipeline together.
func buildEngine(ctx context.Context, settings *config.Settings) (*core.Engine, error) {
	providerName := settings.Provider
	if providerName == "" {
		available := provider.Available()
		if len(available) == 0 {
			return nil, fmt.Errorf("no provider configured; set ANTHROPIC_API_KEY or OPENAI_API_KEY")
		}
		providerName = string(available[0].Name)
	}
	p, err := provider.New(ctx, provider.Name(providerName))
	if err != nil {
		return nil, err
	}

	model := settings.Model
	if model == "" {
		models, err := p.ListModels(ctx)
		if err != nil || len(models) == 0 {
			return nil, fmt.Errorf("no model configured for provider %s", providerName)
		}
		model = models[0].ID
	}

	conversations, err := store.NewFileConversations("")
	if err != nil {
		return nil, err
	}
	offload, err := store.NewFileOffload("")
	if err != nil {
		return nil, err
	}

	cl := &client.Client{Provider: p, Model: model, MaxTokens: settings.MaxTokens}
	return core.NewEngine(session.NewStore(), conversations, offload,
		tool.DefaultRegistry, cl, settings), nil
}

// inputMessage gets the prompt from flags, args, or piped stdin.
func inputMessage(args []string) string {
	if promptFlag != "" {
		return promptFlag
	}
	if len(args) > 0 {
		return strings.Join(args, " ")
	}

	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err == nil && len(data) > 0 {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}
