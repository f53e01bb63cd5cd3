package asset

import (
	"strings"
	"time"

	"fieldcapture/internal/capture"
)

// Status represents the lifecycle of a media asset.
//
// Valid paths: uploading → processing → (ready | failed), and
// failed → processing on explicit retry. Ready is terminal.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{StatusUploading, StatusProcessing, StatusReady, StatusFailed}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Asset is the durable record for uploaded bytes. The storage locator is
// empty only while the asset is still uploading; once bytes are confirmed
// stored the processing transition sets it, and it never empties again, so
// the original bytes stay retrievable even for failed assets.
type Asset struct {
	ID               string
	PropertyID       string
	OriginalFilename string
	FileType         capture.FileType
	MimeType         string
	SizeBytes        int64
	StorageLocator   string
	Status           Status
	ProcessingError  string
	ThumbnailLocator string
	PreviewLocator   string
	ExtractedText    string
	Width            int
	Height           int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ProcessedAt      *time.Time
}

// NewAsset carries the caller-supplied fields for a create. Assets always
// start in uploading with an empty storage locator.
type NewAsset struct {
	PropertyID       string
	OriginalFilename string
	FileType         capture.FileType
	MimeType         string
	SizeBytes        int64
}

// Derivatives holds the worker-produced fields persisted on the ready
// transition.
type Derivatives struct {
	ThumbnailLocator string
	PreviewLocator   string
	ExtractedText    string
	Width            int
	Height           int
}
