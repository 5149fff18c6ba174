// nexusctl is the operator CLI: schema migrations, manual GitHub sync and
// outbox replay.
//
// Usage:
//
//	nexusctl migrate
//	nexusctl github sync --project=<id> --user=<id>
//	nexusctl outbox replay [--id=<event id>] [--limit=<n>]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nexus/config"
	"nexus/pkg/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	env       string
	configDir string
}

var rootCmd = &cobra.Command{
	Use:   "nexusctl",
	Short: "Operator tooling for the nexus backend",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.env, "env", "", "Config environment (defaults to CONFIG_ENV or local)")
	f.StringVar(&rootFlags.configDir, "config-dir", "", "Config directory (defaults to CONFIG_DIR or config)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(githubCmd)
	rootCmd.AddCommand(outboxCmd)
	rootCmd.Version = version
}

// setup loads configuration and a logger for a subcommand.
func setup() (*config.Config, *zap.Logger, error) {
	env := rootFlags.env
	if env == "" {
		env = os.Getenv("CONFIG_ENV")
	}
	if env == "" {
		env = "local"
	}
	dir := rootFlags.configDir
	if dir == "" {
		dir = os.Getenv("CONFIG_DIR")
	}
	if dir == "" {
		dir = "config"
	}

	cfg, err := config.LoadFrom(env, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(cfg.Log), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
