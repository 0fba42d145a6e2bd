package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/intake-pipeline/internal/bootstrap"
	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Inspect, confirm and promote server-side batches",
	}

	batchCmd.AddCommand(newBatchShowCommand(ctx))
	batchCmd.AddCommand(newBatchValidateCommand(ctx))
	batchCmd.AddCommand(newBatchItemsCommand(ctx))
	batchCmd.AddCommand(newBatchConfirmCommand(ctx))
	batchCmd.AddCommand(newBatchPromoteCommand(ctx))
	batchCmd.AddCommand(newBatchErrorsCommand(ctx))

	return batchCmd
}

func newBatchShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show BATCH_ID",
		Short: "Show batch status and counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := bootstrap.NewBatchOperations(ctx.configValue())
			batch, err := ops.GetBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, batch)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, batchRows(batch), nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the batch as JSON")
	return cmd
}

func newBatchValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate BATCH_ID",
		Short: "Revalidate a batch after corrections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := bootstrap.NewBatchOperations(ctx.configValue())
			result, err := ops.ValidateBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			accepted, rejected := result.Counts()
			fmt.Fprintf(cmd.OutOrStdout(), "Batch %s: %d accepted, %d rejected\n", args[0], accepted, rejected)
			return nil
		},
	}
}

func newBatchItemsCommand(ctx *commandContext) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "items BATCH_ID",
		Short: "List batch items and their validation issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := bootstrap.NewBatchOperations(ctx.configValue())
			items, err := ops.ListItems(cmd.Context(), args[0], domain.ItemValidation(status))
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No items")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Item", "Status", "Issues"}, validationRows(items), nil))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (valid, invalid, pending, promoted)")
	return cmd
}

func newBatchConfirmCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm BATCH_ID PARSER_ID",
		Short: "Confirm the parser of a low-confidence batch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := bootstrap.NewBatchOperations(ctx.configValue())
			if err := ops.ConfirmBatch(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Batch %s confirmed with parser %s\n", args[0], args[1])
			return nil
		},
	}
}

func newBatchPromoteCommand(ctx *commandContext) *cobra.Command {
	var opts domain.PromoteOptions
	cmd := &cobra.Command{
		Use:   "promote BATCH_ID",
		Short: "Promote a validated batch into live records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := bootstrap.NewBatchOperations(ctx.configValue())
			result, err := ops.PromoteBatch(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Created", "Skipped", "Failed"},
				[][]string{{fmt.Sprint(result.Created), fmt.Sprint(result.Skipped), fmt.Sprint(result.Failed)}},
				[]columnAlignment{alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Auto, "auto", false, "Let the server resolve promotion defaults")
	cmd.Flags().StringVar(&opts.TargetWarehouseID, "warehouse", "", "Target warehouse id")
	cmd.Flags().BoolVar(&opts.CreateWarehouse, "create-warehouse", false, "Create the target warehouse when missing")
	cmd.Flags().BoolVar(&opts.AllowMissingPrice, "allow-missing-price", false, "Promote products without a price")
	cmd.Flags().BoolVar(&opts.Activate, "activate", false, "Activate promoted records")
	return cmd
}

func newBatchErrorsCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "errors BATCH_ID",
		Short: "Download the delimited error report of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := bootstrap.NewBatchOperations(ctx.configValue())
			report, err := ops.ErrorsReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(report)
				return err
			}
			if err := os.WriteFile(output, report, 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file instead of stdout")
	return cmd
}
