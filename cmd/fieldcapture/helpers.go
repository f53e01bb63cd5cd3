package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"fieldcapture/internal/capture"
)

var titleCaser = cases.Title(language.English)

// displayCaptureType renders a capture type for humans ("voice_note" ->
// "Voice Note").
func displayCaptureType(captureType capture.Type) string {
	return titleCaser.String(strings.ReplaceAll(string(captureType), "_", " "))
}

// cleanOutbox removes staged blobs no pending record references. Runs
// after a successful drain; errors are ignored since leftover files are
// retried on the next clean.
func cleanOutbox(ctx *commandContext) {
	outbox, err := ctx.outboxDir()
	if err != nil {
		return
	}
	queue, err := ctx.ensureQueue()
	if err != nil {
		return
	}

	referenced := make(map[string]struct{})
	cleanCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	iterator := queue.List(cleanCtx)
	for {
		record, err := iterator.Next(cleanCtx)
		if err != nil || record == nil {
			break
		}
		if record.LocalBlobRef != "" {
			referenced[filepath.Clean(record.LocalBlobRef)] = struct{}{}
		}
	}

	entries, err := os.ReadDir(outbox)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(outbox, entry.Name())
		if _, ok := referenced[filepath.Clean(path)]; !ok {
			os.Remove(path)
		}
	}
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
