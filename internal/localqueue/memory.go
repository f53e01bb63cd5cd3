package localqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is the session-only fallback used when durable storage is
// unavailable. It honors the same ordering and idempotency contracts as the
// SQLite store but reports Durable() == false so callers can warn the user.
type Memory struct {
	mu      sync.Mutex
	records []*PendingCapture
}

// NewMemory returns an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{}
}

// Durable reports that records do not survive restarts.
func (m *Memory) Durable() bool { return false }

// Close releases nothing; it exists to satisfy the Queue interface.
func (m *Memory) Close() error { return nil }

// Enqueue appends a new pending capture.
func (m *Memory) Enqueue(ctx context.Context, record NewPendingCapture) (*PendingCapture, error) {
	if err := validateNew(record); err != nil {
		return nil, err
	}
	pending := &PendingCapture{
		ID:           uuid.NewString(),
		VisitStopID:  record.VisitStopID,
		Type:         record.Type,
		LocalBlobRef: record.LocalBlobRef,
		Caption:      record.Caption,
		Transcript:   record.Transcript,
		Sentiment:    record.Sentiment,
		Location:     record.Location,
		CapturedBy:   record.CapturedBy,
		EnqueuedAt:   time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, pending)
	return pending, nil
}

// List returns a restartable iterator over pending records in enqueue order.
func (m *Memory) List(ctx context.Context) *Iterator {
	return newIterator(m.fetchAfter)
}

// Remove deletes a record by id; unknown ids are a no-op.
func (m *Memory) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, record := range m.records {
		if record.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return nil
}

// Count reports the number of pending records.
func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

func (m *Memory) fetchAfter(ctx context.Context, afterEnqueued time.Time, afterID string, limit int) ([]*PendingCapture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := make([]*PendingCapture, len(m.records))
	copy(sorted, m.records)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].EnqueuedAt.Equal(sorted[j].EnqueuedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].EnqueuedAt.Before(sorted[j].EnqueuedAt)
	})

	var batch []*PendingCapture
	for _, record := range sorted {
		if !after(record, afterEnqueued, afterID) {
			continue
		}
		batch = append(batch, record)
		if len(batch) >= limit {
			break
		}
	}
	return batch, nil
}

func after(record *PendingCapture, enqueued time.Time, id string) bool {
	if record.EnqueuedAt.After(enqueued) {
		return true
	}
	return record.EnqueuedAt.Equal(enqueued) && record.ID > id
}
