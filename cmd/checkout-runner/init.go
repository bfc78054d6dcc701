package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/checkout-runner/internal/config"
)

func newInitCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write default settings, tasks and proxies files.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath, opts.envPath)
			if err != nil {
				return err
			}
			return initFiles(cfg, opts.configPath, opts.force, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite existing files")
	return cmd
}

// initFiles writes each missing file; existing ones are kept unless force is set.
func initFiles(cfg *config.Settings, settingsPath string, force bool, out io.Writer) error {
	steps := []struct {
		path  string
		write func() error
	}{
		{settingsPath, func() error { return config.Save(cfg, settingsPath) }},
		{cfg.TasksFile, func() error { return config.WriteDefaultTasks(cfg.TasksFile) }},
		{cfg.ProxiesFile, func() error { return os.WriteFile(cfg.ProxiesFile, nil, 0644) }},
	}

	for _, s := range steps {
		if _, err := os.Stat(s.path); err == nil && !force {
			fmt.Fprintf(out, "kept %s\n", s.path)
			continue
		}
		if err := s.write(); err != nil {
			return fmt.Errorf("writing %s: %w", s.path, err)
		}
		fmt.Fprintf(out, "wrote %s\n", s.path)
	}

	return nil
}
