package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kirillkom/intake-pipeline/internal/bootstrap"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [DIR]",
		Short: "Queue every file dropped into an inbox directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if len(args) == 1 {
				cfg.InboxDir = args[0]
			}
			if cfg.InboxDir == "" {
				return errors.New("inbox directory is required (argument or INBOX_DIR)")
			}

			app, err := bootstrap.New(cmd.Context(), serviceName, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			slog.Info("inbox_started", "dir", cfg.InboxDir, "auto_save", cfg.AutoSave)
			return app.NewInbox().Run(cmd.Context())
		},
	}
}
