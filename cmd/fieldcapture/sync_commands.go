package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fieldcapture/internal/syncer"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Drain the local queue to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			coordinator, err := ctx.newCoordinator()
			if err != nil {
				return err
			}
			result, err := coordinator.Drain(cmd.Context())
			out := cmd.OutOrStdout()
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("sync", statusWarn,
					fmt.Sprintf("aborted after %d submission(s); %d still pending", result.Submitted, result.Remaining),
					shouldColorize(out)))
				return err
			}
			cleanOutbox(ctx)
			fmt.Fprintf(out, "Synced %d capture(s); queue empty\n", result.Submitted)
			return nil
		},
	}
	syncCmd.AddCommand(newSyncWatchCommand(ctx))
	return syncCmd
}

// newSyncWatchCommand keeps draining until interrupted. After a failed
// pass it probes the health endpoint on the reconnect interval and drains
// again as soon as the server answers.
func newSyncWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Continuously sync, waiting out connectivity gaps",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			coordinator, err := ctx.newCoordinator()
			if err != nil {
				return err
			}
			submitter := syncer.NewHTTPSubmitter(cfg.Client)
			reconnect := time.Duration(cfg.Sync.ReconnectInterval) * time.Second
			wakeDelay := time.Duration(cfg.Sync.WakeDelay) * time.Second

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Watching local queue; press Ctrl-C to stop")

			drainSignal := make(chan struct{}, 1)
			wake := func() {
				select {
				case drainSignal <- struct{}{}:
				default:
				}
			}
			waker := syncer.NewTimerWaker(wakeDelay, wake)
			defer waker.Stop()
			wake()

			for {
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-drainSignal:
				}

				result, err := coordinator.Drain(cmd.Context())
				if err == nil {
					cleanOutbox(ctx)
					if result.Submitted > 0 {
						fmt.Fprintf(out, "Synced %d capture(s)\n", result.Submitted)
					}
					waker.Wake()
					continue
				}

				fmt.Fprintln(out, renderStatusLine("sync", statusWarn,
					fmt.Sprintf("server unreachable; %d pending, retrying every %s", result.Remaining, reconnect),
					shouldColorize(out)))
				if err := waitForServer(cmd.Context(), submitter, reconnect); err != nil {
					return err
				}
				wake()
			}
		},
	}
}

func waitForServer(ctx context.Context, submitter *syncer.HTTPSubmitter, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := submitter.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
	}
}
