package main

import (
	"fmt"
	"os"

	_ "toolbridge/pkg/channels/autoload" // registers channels
	_ "toolbridge/pkg/llm/autoload"      // registers LLM providers

	"github.com/spf13/cobra"
)

var (
	toolsConfigPath  string
	systemConfigPath string
	logLevel         string
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolbridge",
		Short: "Bridge screenshots and context to external reasoning tools",
		Long: `toolbridge forwards a screenshot plus a context string to the tool selected
in tools_config.json and returns a normalized action:

  internal         in-process provider SDK (gemini, openai, ollama, azure)
  terminal_bridge  fixed bridge script run once per request
  persistent       long-lived CLI driven over pipes or a pseudo-terminal
  oneshot          CLI run once per request

Examples:
  toolbridge serve                                  # HTTP + websocket on 127.0.0.1:8000
  toolbridge invoke --image frame.png --context "main menu"`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&toolsConfigPath, "config", "tools_config.json", "tools configuration file")
	cmd.PersistentFlags().StringVar(&systemConfigPath, "system", "system.json", "system configuration file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(), invokeCmd())
	return cmd
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
