package syncer

import (
	"sync"
	"time"
)

// Waker schedules a deferred drain attempt. Delivery is best effort; a
// missed wake only delays sync until the next explicit trigger.
type Waker interface {
	Wake()
	Stop()
}

// TimerWaker fires fn once after the configured delay. Wakes arriving
// while one is already pending are coalesced.
type TimerWaker struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewTimerWaker builds a waker that calls fn on its own goroutine.
func NewTimerWaker(delay time.Duration, fn func()) *TimerWaker {
	return &TimerWaker{delay: delay, fn: fn}
}

// Wake arms the timer unless one is already pending.
func (w *TimerWaker) Wake() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.timer != nil {
		return
	}
	w.timer = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		w.timer = nil
		stopped := w.stopped
		w.mu.Unlock()
		if !stopped {
			w.fn()
		}
	})
}

// Stop cancels any pending wake and rejects new ones.
func (w *TimerWaker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// NopWaker ignores all wakes.
type NopWaker struct{}

func (NopWaker) Wake() {}
func (NopWaker) Stop() {}
