package main

import (
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kirillkom/intake-pipeline/internal/config"
	"github.com/kirillkom/intake-pipeline/internal/observability/logging"
)

const serviceName = "intake-cli"

type commandContext struct {
	logLevel *string

	configOnce sync.Once
	config     config.Config
}

func (c *commandContext) configValue() config.Config {
	c.configOnce.Do(func() {
		c.config = config.Load()
		if c.logLevel != nil && *c.logLevel != "" {
			c.config.LogLevel = *c.logLevel
		}
	})
	return c.config
}

func newRootCommand() *cobra.Command {
	var logLevel string
	ctx := &commandContext{logLevel: &logLevel}

	rootCmd := &cobra.Command{
		Use:           "intake",
		Short:         "Document intake pipeline CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			slog.SetDefault(logging.NewJSONLoggerTo(cmd.ErrOrStderr(), serviceName, cfg.LogLevel))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newProgressCommand(ctx))

	return rootCmd
}
