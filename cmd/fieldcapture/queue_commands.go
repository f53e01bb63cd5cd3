package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the local capture queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueCountCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending captures in enqueue order",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := ctx.ensureQueue()
			if err != nil {
				return err
			}

			var rows [][]string
			iterator := queue.List(cmd.Context())
			for {
				record, err := iterator.Next(cmd.Context())
				if err != nil {
					return err
				}
				if record == nil {
					break
				}
				rows = append(rows, []string{
					record.ID,
					displayCaptureType(record.Type),
					record.VisitStopID,
					truncate(record.Caption, 40),
					record.EnqueuedAt.Local().Format(time.DateTime),
				})
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "Local queue is empty")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Type", "Visit Stop", "Caption", "Enqueued"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			if !queue.Durable() {
				fmt.Fprintln(out, renderStatusLine("durability", statusWarn,
					"in-memory queue; records do not survive restart", shouldColorize(out)))
			}
			return nil
		},
	}
}

func newQueueCountCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Show the number of pending captures",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := ctx.ensureQueue()
			if err != nil {
				return err
			}
			count, err := queue.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d pending capture(s), durable: %s\n", count, yesNo(queue.Durable()))
			return nil
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a pending capture without syncing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := ctx.ensureQueue()
			if err != nil {
				return err
			}
			if err := queue.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			cleanOutbox(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}
