package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/intake-pipeline/internal/bootstrap"
	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

var errProgressDone = errors.New("batch finished")

func newProgressCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "progress BATCH_ID",
		Short: "Follow the progress channel of a server-side batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bus, err := bootstrap.NewEventBus(ctx.configValue())
			if err != nil {
				return err
			}
			defer bus.Close()

			subCtx, cancel := context.WithCancelCause(cmd.Context())
			defer cancel(nil)

			err = bus.SubscribeBatchProgress(subCtx, args[0], func(_ context.Context, p domain.BatchProgress) error {
				fmt.Fprintln(cmd.OutOrStdout(), progressLine(p))
				if !follow && progressDone(p) {
					cancel(errProgressDone)
				}
				return nil
			})
			if errors.Is(context.Cause(subCtx), errProgressDone) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "Keep listening after the batch finishes")
	return cmd
}
