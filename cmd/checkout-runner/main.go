package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/checkout-runner/internal/config"
)

type options struct {
	configPath string
	envPath    string
	tui        bool
	logLevel   string
	force      bool // init only
}

func main() {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "checkout-runner",
		Short:         "checkout-runner races a set of purchase tasks against the shop until each one places its order.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultSettingsFile, "settings file (JSON5)")
	root.PersistentFlags().StringVar(&opts.envPath, "env", config.DefaultEnvFile, "dotenv file with CHECKOUT_* overrides")
	root.Flags().BoolVar(&opts.tui, "tui", false, "show the live dashboard")
	root.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides settings)")

	root.AddCommand(newInitCmd(opts))
	return root
}

// loadSettings applies explicitly set flags over the loaded settings.
func loadSettings(cmd *cobra.Command, opts *options) (*config.Settings, error) {
	cfg, err := config.Load(opts.configPath, opts.envPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("tui") {
		cfg.TUI = opts.tui
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, nil
}
