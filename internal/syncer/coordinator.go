package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fieldcapture/internal/localqueue"
	"fieldcapture/internal/logging"
)

// State describes what the coordinator is doing.
type State string

const (
	// StateIdle means the queue is drained and no work is in flight.
	StateIdle State = "idle"
	// StateDraining means a drain pass is walking the queue.
	StateDraining State = "draining"
	// StateWaitingForReconnect means the last drain aborted on a failure
	// and the coordinator is waiting for connectivity before trying again.
	StateWaitingForReconnect State = "waiting_for_reconnect"
)

// Submitter pushes one pending capture to the server. A nil error means
// the server durably accepted the record.
type Submitter interface {
	Submit(ctx context.Context, record *localqueue.PendingCapture) error
}

// Coordinator drains the local queue in enqueue order. Each record is
// submitted under its own timeout and removed from the queue only after
// the server confirms it, so a crash mid-drain re-submits at most the
// record that was in flight. The first failure aborts the pass; order is
// never violated by skipping ahead.
type Coordinator struct {
	queue         localqueue.Queue
	submitter     Submitter
	submitTimeout time.Duration
	logger        *slog.Logger

	mu    sync.Mutex
	state State
}

// NewCoordinator wires a coordinator. submitTimeout is expected to be
// pre-clamped by config normalization.
func NewCoordinator(queue localqueue.Queue, submitter Submitter, submitTimeout time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		queue:         queue,
		submitter:     submitter,
		submitTimeout: submitTimeout,
		logger:        logging.NewComponentLogger(logger, "syncer"),
		state:         StateIdle,
	}
}

// State reports the coordinator's current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Submitted int
	Remaining int
}

// Drain walks the queue from the head, submitting and removing records
// one at a time. It returns the failure that aborted the pass, or nil when
// the queue is empty. Only one drain runs at a time; a concurrent call
// returns immediately with no work done.
func (c *Coordinator) Drain(ctx context.Context) (DrainResult, error) {
	c.mu.Lock()
	if c.state == StateDraining {
		c.mu.Unlock()
		return DrainResult{}, nil
	}
	c.state = StateDraining
	c.mu.Unlock()

	result, err := c.drain(ctx)

	c.mu.Lock()
	if err != nil {
		c.state = StateWaitingForReconnect
	} else {
		c.state = StateIdle
	}
	c.mu.Unlock()
	return result, err
}

func (c *Coordinator) drain(ctx context.Context) (DrainResult, error) {
	var result DrainResult
	iterator := c.queue.List(ctx)
	for {
		record, err := iterator.Next(ctx)
		if err != nil {
			return c.finish(ctx, result), err
		}
		if record == nil {
			return c.finish(ctx, result), nil
		}

		if err := c.submitOne(ctx, record); err != nil {
			c.logger.Warn("drain aborted; queue preserved in order",
				logging.String(logging.FieldCaptureID, record.ID),
				logging.Int("submitted", result.Submitted),
				logging.Error(err))
			return c.finish(ctx, result), err
		}
		if err := c.queue.Remove(ctx, record.ID); err != nil {
			// The server has the record; a failed remove risks one
			// duplicate on the next pass, never a loss.
			return c.finish(ctx, result), err
		}
		result.Submitted++
	}
}

func (c *Coordinator) submitOne(ctx context.Context, record *localqueue.PendingCapture) error {
	submitCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()
	return c.submitter.Submit(submitCtx, record)
}

func (c *Coordinator) finish(ctx context.Context, result DrainResult) DrainResult {
	if remaining, err := c.queue.Count(ctx); err == nil {
		result.Remaining = remaining
	}
	if result.Submitted > 0 || result.Remaining > 0 {
		c.logger.Info("drain pass finished",
			logging.Int("submitted", result.Submitted),
			logging.Int("remaining", result.Remaining))
	}
	return result
}
