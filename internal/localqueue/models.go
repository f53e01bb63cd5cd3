package localqueue

import (
	"time"

	"fieldcapture/internal/capture"
)

// PendingCapture is one submission waiting for sync. Records are immutable
// after enqueue and exist only until the server confirms persistence.
type PendingCapture struct {
	ID           string
	VisitStopID  string
	Type         capture.Type
	LocalBlobRef string
	Caption      string
	Transcript   string
	Sentiment    string
	Location     *capture.Location
	CapturedBy   capture.CapturedBy
	EnqueuedAt   time.Time
}

// NewPendingCapture carries the caller-supplied fields for an enqueue. The
// queue assigns the id and enqueue timestamp.
type NewPendingCapture struct {
	VisitStopID  string
	Type         capture.Type
	LocalBlobRef string
	Caption      string
	Transcript   string
	Sentiment    string
	Location     *capture.Location
	CapturedBy   capture.CapturedBy
}
