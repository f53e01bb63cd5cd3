package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"fieldcapture/internal/api"
)

func newAssetCommand(ctx *commandContext) *cobra.Command {
	assetCmd := &cobra.Command{
		Use:   "asset",
		Short: "Inspect and retry server-side media processing",
	}
	assetCmd.AddCommand(newAssetStatusCommand(ctx))
	assetCmd.AddCommand(newAssetRetryCommand(ctx))
	return assetCmd
}

func newAssetStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show the processing status of a media asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var status api.AssetStatusResponse
			if err := ctx.apiRequest(cmd, http.MethodGet, "/api/assets/"+args[0], &status); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderStatusLine("status", assetStatusKind(status.Status), status.Status, colorize))
			if status.ProcessingError != "" {
				fmt.Fprintln(out, renderStatusLine("error", statusError, status.ProcessingError, colorize))
			}
			if status.ProcessedAt != nil {
				fmt.Fprintln(out, renderStatusLine("processed", statusInfo, status.ProcessedAt.Local().Format(time.DateTime), colorize))
			}
			if status.ThumbnailLocator != "" {
				fmt.Fprintln(out, renderStatusLine("thumbnail", statusInfo, status.ThumbnailLocator, colorize))
			}
			return nil
		},
	}
}

func newAssetRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Requeue a failed media asset for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var status api.AssetStatusResponse
			if err := ctx.apiRequest(cmd, http.MethodPost, "/api/assets/"+args[0]+"/retry", &status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Asset %s requeued, status: %s\n", status.ID, status.Status)
			return nil
		},
	}
}

func assetStatusKind(status string) statusKind {
	switch status {
	case "ready":
		return statusOK
	case "failed":
		return statusError
	case "processing", "uploading":
		return statusInfo
	default:
		return statusWarn
	}
}

// apiRequest performs an authenticated call against the ingest daemon and
// decodes the JSON response into out.
func (c *commandContext) apiRequest(cmd *cobra.Command, method, path string, out any) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(cmd.Context(), method, cfg.Client.ServerURL+path, nil)
	if err != nil {
		return err
	}
	if cfg.Client.APIToken != "" {
		request.Header.Set("Authorization", "Bearer "+cfg.Client.APIToken)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	response, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("contact server: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		var body api.ErrorResponse
		if decodeErr := json.NewDecoder(io.LimitReader(response.Body, 4096)).Decode(&body); decodeErr == nil && body.Error != "" {
			return fmt.Errorf("server rejected request: %s", body.Error)
		}
		return fmt.Errorf("server returned status %d", response.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(out)
}
