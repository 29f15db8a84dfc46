// Package clock defines the deferred-operation runtime contract the
// scheduler core imports from its host (spec §4.6), plus a
// deterministic in-memory implementation used by this module's own
// tests and suitable for a discrete-event simulator host.
package clock

import (
	"container/heap"
	"sync"
	"time"
)

// Clock is the contract a host runtime must satisfy: a monotonic
// "now" and the ability to schedule a closure to run after a delay.
// Closures scheduled for the same instant run in scheduling order;
// a closure scheduled with after==0 still runs strictly after the
// call that scheduled it returns (no re-entrance).
type Clock interface {
	Now() time.Time
	Schedule(after time.Duration, f func())
}

type timer struct {
	at   time.Time
	seq  uint64
	f    func()
	idx  int
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx, h[j].idx = i, j
}
func (h *timerHeap) Push(x interface{}) {
	t := x.(*timer)
	t.idx = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Manual is a Clock whose "now" only advances when explicitly told
// to, giving tests full control over shaping delays (spec scenario
// S5) without wall-clock flakiness. It is not safe for concurrent use,
// matching the scheduler's single-threaded cooperative model.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	pending timerHeap
	nextSeq uint64
}

// NewManual returns a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now implements Clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Schedule implements Clock.
func (m *Manual) Schedule(after time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if after < 0 {
		after = 0
	}
	t := &timer{at: m.now.Add(after), seq: m.nextSeq, f: f}
	m.nextSeq++
	heap.Push(&m.pending, t)
}

// Advance moves "now" forward by d, running every closure whose
// deadline falls at or before the new "now", in deadline/scheduling
// order. Closures scheduled by a running closure are eligible for the
// same Advance call if their deadline also falls within it.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	m.runUntil(target)
}

// AdvanceTo moves "now" forward to at least t, running every closure
// due by then.
func (m *Manual) AdvanceTo(t time.Time) {
	m.runUntil(t)
}

func (m *Manual) runUntil(target time.Time) {
	for {
		m.mu.Lock()
		if len(m.pending) == 0 || m.pending[0].at.After(target) {
			if m.now.Before(target) {
				m.now = target
			}
			m.mu.Unlock()
			return
		}
		next := heap.Pop(&m.pending).(*timer)
		m.now = next.at
		m.mu.Unlock()

		next.f()
	}
}
