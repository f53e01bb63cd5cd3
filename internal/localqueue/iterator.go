package localqueue

import (
	"context"
	"time"
)

const iteratorBatchSize = 50

// fetchFunc returns up to limit pending records strictly after the
// (enqueuedAt, id) cursor, in enqueue order.
type fetchFunc func(ctx context.Context, afterEnqueued time.Time, afterID string, limit int) ([]*PendingCapture, error)

// Iterator walks pending records lazily in enqueue order. Each batch is
// re-queried from storage, so records removed by the caller while iterating
// are never revisited and a fresh iterator always starts from the current
// queue head.
type Iterator struct {
	fetch fetchFunc
	batch []*PendingCapture
	idx   int
	done  bool

	lastEnqueued time.Time
	lastID       string
}

func newIterator(fetch fetchFunc) *Iterator {
	return &Iterator{fetch: fetch}
}

// Next returns the next pending record, or (nil, nil) when the queue is
// exhausted.
func (it *Iterator) Next(ctx context.Context) (*PendingCapture, error) {
	if it == nil || it.done {
		return nil, nil
	}
	if it.idx >= len(it.batch) {
		batch, err := it.fetch(ctx, it.lastEnqueued, it.lastID, iteratorBatchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			it.done = true
			return nil, nil
		}
		it.batch = batch
		it.idx = 0
	}
	record := it.batch[it.idx]
	it.idx++
	it.lastEnqueued = record.EnqueuedAt
	it.lastID = record.ID
	return record, nil
}
