package clock

import (
	"container/heap"
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WallClock is a Clock backed by the real wall clock, for a host that
// has no discrete-event simulator of its own (spec §4.6 names the
// contract; this is the reference implementation for that case, not
// the one a production simulator host would use). Nothing drives time
// forward automatically, so Run polls its own pending-timer heap,
// backing off between empty polls the way the teacher's peer-manager
// backoff helper spaces out retries, instead of spinning.
type WallClock struct {
	*Manual
}

// NewWallClock returns a WallClock whose Now() tracks time.Now().
func NewWallClock() *WallClock {
	return &WallClock{Manual: NewManual(time.Now())}
}

// Now implements Clock by reading the real wall clock rather than the
// embedded Manual's frozen time.
func (w *WallClock) Now() time.Time {
	return time.Now()
}

// Schedule implements Clock. It bypasses Manual.Schedule because that
// computes the deadline from Manual's frozen now field, which only
// advances when Run polls; a wall clock must key deadlines off the
// real clock at the moment Schedule is called.
func (w *WallClock) Schedule(after time.Duration, f func()) {
	if after < 0 {
		after = 0
	}
	w.Manual.mu.Lock()
	defer w.Manual.mu.Unlock()
	t := &timer{at: time.Now().Add(after), seq: w.Manual.nextSeq, f: f}
	w.Manual.nextSeq++
	heap.Push(&w.Manual.pending, t)
}

// Run polls for and fires due timers until ctx is done. Each empty
// poll extends a bounded exponential backoff before the next one; any
// poll that fires at least one timer resets it, so a busy clock is
// polled tightly and an idle one is not.
func (w *WallClock) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Millisecond
	bo.MaxInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 0
	// NewExponentialBackOff already reset the current interval to the
	// default InitialInterval; reset again so the first wait uses ours.
	bo.Reset()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if w.pollDue() {
			bo.Reset()
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// pollDue fires every timer already due against the real clock,
// reusing Manual's heap and dispatch so WallClock and Manual schedule
// and run closures identically.
func (w *WallClock) pollDue() (fired bool) {
	now := time.Now()
	for {
		w.Manual.mu.Lock()
		if len(w.Manual.pending) == 0 || w.Manual.pending[0].at.After(now) {
			w.Manual.mu.Unlock()
			return fired
		}
		next := heap.Pop(&w.Manual.pending).(*timer)
		w.Manual.now = next.at
		w.Manual.mu.Unlock()

		next.f()
		fired = true
	}
}
