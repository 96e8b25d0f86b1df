package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bankshield",
	Short: "Security monitoring console for BankShield",
	Long: `bankshield is the terminal client for the BankShield security platform.
It signs analysts in, lists and analyzes security events, manages bank files,
checks access decisions and talks to the AI security assistant.

Run 'bankshield dashboard' for the interactive console.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which commands use for
// cancellation of in-flight requests
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default is $HOME/.bankshield/config.yaml)")
	pf.String("api-url", "", "backend API base URL (overrides config and BANKSHIELD_API_URL)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address while running")
	pf.StringP("format", "o", "text", "output format: text, json or yaml")
}
