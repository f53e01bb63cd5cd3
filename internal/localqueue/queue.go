package localqueue

import (
	"context"
	"log/slog"

	"fieldcapture/internal/logging"
)

// Queue is the durable local store of pending capture submissions.
type Queue interface {
	// Enqueue validates required fields, assigns a locally unique id, and
	// persists the record.
	Enqueue(ctx context.Context, record NewPendingCapture) (*PendingCapture, error)
	// List returns a lazy, restartable iterator over pending records in
	// enqueue order.
	List(ctx context.Context) *Iterator
	// Remove deletes a record by id; removing an already-removed record is a
	// no-op.
	Remove(ctx context.Context, id string) error
	// Count reports the number of pending records from storage truth.
	Count(ctx context.Context) (int, error)
	// Durable reports whether records survive a process restart.
	Durable() bool
	Close() error
}

// Open returns the durable SQLite queue at dbPath, degrading to an in-memory
// queue for the session when the database cannot be opened. The degradation
// is logged; callers surface it via Durable.
func Open(dbPath string, logger *slog.Logger) Queue {
	if logger == nil {
		logger = logging.NewNop()
	}
	store, err := OpenStore(dbPath)
	if err != nil {
		logger.Warn("local queue storage unavailable; captures will not survive restart",
			logging.Args(
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_degraded"),
				logging.String(logging.FieldErrorHint, "check permissions on the data directory"),
			)...)
		return NewMemory()
	}
	return store
}
