package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fieldcapture/internal/capture"
	"fieldcapture/internal/localqueue"
)

type captureFlags struct {
	visitStop  string
	caption    string
	transcript string
	sentiment  string
	capturedBy string
	lat        float64
	lng        float64
	located    bool
	noSync     bool
}

func (f *captureFlags) register(cmd *cobra.Command, withLocation bool) {
	cmd.Flags().StringVar(&f.visitStop, "stop", "", "Visit stop identifier (required)")
	cmd.Flags().StringVar(&f.caption, "caption", "", "Caption text")
	cmd.Flags().StringVar(&f.sentiment, "sentiment", "", "Client sentiment note")
	cmd.Flags().StringVar(&f.capturedBy, "by", "sales", "Who captured this (sales or client)")
	cmd.Flags().BoolVar(&f.noSync, "no-sync", false, "Skip the immediate sync attempt")
	if withLocation {
		cmd.Flags().Float64Var(&f.lat, "lat", 0, "Capture latitude")
		cmd.Flags().Float64Var(&f.lng, "lng", 0, "Capture longitude")
	}
	_ = cmd.MarkFlagRequired("stop")
}

func (f *captureFlags) location(cmd *cobra.Command) *capture.Location {
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
		return &capture.Location{Lat: f.lat, Lng: f.lng}
	}
	return nil
}

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Record a capture into the local queue",
	}
	captureCmd.AddCommand(newCapturePhotoCommand(ctx))
	captureCmd.AddCommand(newCaptureVoiceCommand(ctx))
	captureCmd.AddCommand(newCaptureNoteCommand(ctx))
	return captureCmd
}

func newCapturePhotoCommand(ctx *commandContext) *cobra.Command {
	var flags captureFlags
	cmd := &cobra.Command{
		Use:   "photo <file>",
		Short: "Queue a photo capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMediaCapture(cmd, ctx, &flags, capture.TypePhoto, args[0])
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newCaptureVoiceCommand(ctx *commandContext) *cobra.Command {
	var flags captureFlags
	cmd := &cobra.Command{
		Use:   "voice <file>",
		Short: "Queue a voice note capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMediaCapture(cmd, ctx, &flags, capture.TypeVoiceNote, args[0])
		},
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&flags.transcript, "transcript", "", "Transcript of the voice note")
	flags.register(cmd, true)
	return cmd
}

func newCaptureNoteCommand(ctx *commandContext) *cobra.Command {
	var flags captureFlags
	cmd := &cobra.Command{
		Use:   "note <text>",
		Short: "Queue a text note capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := ctx.ensureQueue()
			if err != nil {
				return err
			}
			record, err := queue.Enqueue(cmd.Context(), localqueue.NewPendingCapture{
				VisitStopID: flags.visitStop,
				Type:        capture.TypeNote,
				Caption:     args[0],
				Sentiment:   flags.sentiment,
				Location:    flags.location(cmd),
				CapturedBy:  capture.CapturedBy(flags.capturedBy),
			})
			if err != nil {
				return err
			}
			return reportEnqueued(cmd, ctx, record, flags.noSync)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func runMediaCapture(cmd *cobra.Command, ctx *commandContext, flags *captureFlags, captureType capture.Type, sourcePath string) error {
	queue, err := ctx.ensureQueue()
	if err != nil {
		return err
	}
	blobRef, err := copyToOutbox(ctx, sourcePath)
	if err != nil {
		return err
	}

	record, err := queue.Enqueue(cmd.Context(), localqueue.NewPendingCapture{
		VisitStopID:  flags.visitStop,
		Type:         captureType,
		LocalBlobRef: blobRef,
		Caption:      flags.caption,
		Transcript:   flags.transcript,
		Sentiment:    flags.sentiment,
		Location:     flags.location(cmd),
		CapturedBy:   capture.CapturedBy(flags.capturedBy),
	})
	if err != nil {
		os.Remove(blobRef)
		return err
	}
	return reportEnqueued(cmd, ctx, record, flags.noSync)
}

// copyToOutbox snapshots the source file so later drains do not depend on
// the original path still existing.
func copyToOutbox(ctx *commandContext, sourcePath string) (string, error) {
	source, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("open capture file: %w", err)
	}
	defer source.Close()

	outbox, err := ctx.outboxDir()
	if err != nil {
		return "", err
	}
	target := filepath.Join(outbox, uuid.NewString()+strings.ToLower(filepath.Ext(sourcePath)))
	destination, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("stage capture file: %w", err)
	}
	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		os.Remove(target)
		return "", fmt.Errorf("stage capture file: %w", err)
	}
	if err := destination.Close(); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("stage capture file: %w", err)
	}
	return target, nil
}

func reportEnqueued(cmd *cobra.Command, ctx *commandContext, record *localqueue.PendingCapture, noSync bool) error {
	queue, err := ctx.ensureQueue()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Queued %s %s for visit stop %s\n", displayCaptureType(record.Type), record.ID, record.VisitStopID)

	if !queue.Durable() {
		fmt.Fprintln(out, renderStatusLine("durability", statusWarn,
			"queue storage unavailable; captures will be lost if this machine restarts before sync", shouldColorize(out)))
	}

	if !noSync {
		if coordinator, err := ctx.newCoordinator(); err == nil {
			if result, err := coordinator.Drain(cmd.Context()); err == nil {
				fmt.Fprintf(out, "Synced %d capture(s)\n", result.Submitted)
				cleanOutbox(ctx)
			} else {
				fmt.Fprintln(out, "Server unreachable; capture will sync later")
			}
		}
	}

	pending, err := queue.Count(cmd.Context())
	if err == nil {
		fmt.Fprintf(out, "Pending captures: %d\n", pending)
	}
	return nil
}
