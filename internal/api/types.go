// Package api defines the JSON wire types shared by the server handlers and
// the client sync coordinator.
package api

import (
	"time"

	"fieldcapture/internal/capture"
)

// UploadResponse is returned by the byte upload endpoint.
type UploadResponse struct {
	Locator   string `json:"locator"`
	SizeBytes int64  `json:"size_bytes"`
}

// SubmitRequest is one capture submission on the wire.
type SubmitRequest struct {
	VisitStopID      string            `json:"visit_stop_id"`
	CaptureType      string            `json:"capture_type"`
	StorageLocator   string            `json:"storage_locator,omitempty"`
	OriginalFilename string            `json:"original_filename,omitempty"`
	MimeType         string            `json:"mime_type,omitempty"`
	SizeBytes        int64             `json:"size_bytes,omitempty"`
	Caption          string            `json:"caption,omitempty"`
	Transcript       string            `json:"transcript,omitempty"`
	Sentiment        string            `json:"sentiment,omitempty"`
	Location         *capture.Location `json:"location,omitempty"`
	CapturedBy       string            `json:"captured_by"`
}

// SubmitResponse reports the created capture and, when bytes were attached,
// the media asset tracking them.
type SubmitResponse struct {
	CaptureID    string `json:"capture_id"`
	MediaAssetID string `json:"media_asset_id,omitempty"`
}

// AssetStatusResponse is the read-only processing status poll payload.
type AssetStatusResponse struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	ProcessingError  string     `json:"processing_error,omitempty"`
	ThumbnailLocator string     `json:"thumbnail_locator,omitempty"`
}

// CaptureView is one capture in a visit stop listing.
type CaptureView struct {
	ID           string            `json:"id"`
	VisitStopID  string            `json:"visit_stop_id"`
	MediaAssetID string            `json:"media_asset_id,omitempty"`
	CaptureType  string            `json:"capture_type"`
	Caption      string            `json:"caption,omitempty"`
	Transcript   string            `json:"transcript,omitempty"`
	Sentiment    string            `json:"sentiment,omitempty"`
	Location     *capture.Location `json:"location,omitempty"`
	CapturedBy   string            `json:"captured_by"`
	CapturedAt   time.Time         `json:"captured_at"`
}

// CaptureListResponse wraps the captures for one visit stop.
type CaptureListResponse struct {
	Captures []CaptureView `json:"captures"`
}

// HealthResponse is the liveness payload the client reconnect probe reads.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the structured error body for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
