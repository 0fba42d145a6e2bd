package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/intake-pipeline/internal/bootstrap"
	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/infrastructure/storage/localfs"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var save bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Queue files for intake and wait until every item settles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			app, err := bootstrap.New(cmd.Context(), serviceName, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			files := make([]domain.FileSource, 0, len(args))
			for _, path := range args {
				f, err := localfs.OpenPath(path)
				if err != nil {
					return err
				}
				files = append(files, f)
			}

			queued, err := app.Queue.Enqueue(cmd.Context(), files)
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			ids := make([]string, 0, len(queued))
			for _, it := range queued {
				ids = append(ids, it.ID)
			}

			waitCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			items := waitSettled(waitCtx, app, ids)

			if save {
				for _, it := range items {
					if it.Status != domain.StatusReady {
						continue
					}
					if err := app.Queue.Save(cmd.Context(), it.ID); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "save %s: %v\n", it.Name, err)
					}
				}
				items = collect(app, ids)
			}

			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"File", "Size", "Status", "Type", "Confidence", "Batch", "Detail"},
				itemRows(items),
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Save items that are ready after processing")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum time to wait for processing")
	return cmd
}

func waitSettled(ctx context.Context, app *bootstrap.App, ids []string) []domain.UploadItem {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		items := collect(app, ids)
		if settled(items) {
			return items
		}
		select {
		case <-ctx.Done():
			return items
		case <-ticker.C:
		}
	}
}

func collect(app *bootstrap.App, ids []string) []domain.UploadItem {
	items := make([]domain.UploadItem, 0, len(ids))
	for _, id := range ids {
		if it, ok := app.Queue.Get(id); ok {
			items = append(items, it)
		}
	}
	return items
}
