// Package scheduler provides the discrete-event queue that drives the
// receiver core: handlers return future wake times and are re-invoked at
// those simulated instants, one event at a time.
package scheduler

import (
	"container/heap"
	"errors"
	"fmt"
	"time"
)

var (
	ErrPastEvent = errors.New("event scheduled in the past")
	ErrEmptyID   = errors.New("empty correlation id")
)

// Callback is invoked when an event fires, with the event's simulated time.
type Callback func(at time.Duration)

type event struct {
	at       time.Duration
	seq      int
	id       string
	fire     Callback
	canceled bool
	index    int
}

// Scheduler is a single-threaded discrete-event queue. Events are ordered
// by simulated time, ties broken by insertion order. At most one pending
// event exists per correlation id: scheduling the same id again replaces
// the previous wake-up.
type Scheduler struct {
	now     time.Duration
	seq     int
	queue   eventHeap
	pending map[string]*event
	fired   int
}

// New creates a scheduler starting at simulated time 0.
func New() *Scheduler {
	return &Scheduler{pending: make(map[string]*event)}
}

// Now returns the current simulated time: the timestamp of the event being
// dispatched, or of the last one dispatched.
func (s *Scheduler) Now() time.Duration {
	return s.now
}

// Fired returns the number of events dispatched so far.
func (s *Scheduler) Fired() int {
	return s.fired
}

// Pending returns the number of undispatched, uncanceled events.
func (s *Scheduler) Pending() int {
	return len(s.pending)
}

// Schedule enqueues fn to fire at simulated time at, correlated by id. A
// pending event with the same id is replaced. Scheduling before Now is an
// error; scheduling exactly at Now is allowed and fires on the next Step.
func (s *Scheduler) Schedule(id string, at time.Duration, fn Callback) error {
	if id == "" {
		return ErrEmptyID
	}
	if at < s.now {
		return fmt.Errorf("%w: %v < %v (id %q)", ErrPastEvent, at, s.now, id)
	}

	if prev, ok := s.pending[id]; ok {
		prev.canceled = true
	}

	s.seq++
	ev := &event{at: at, seq: s.seq, id: id, fire: fn}
	s.pending[id] = ev
	heap.Push(&s.queue, ev)
	return nil
}

// Cancel removes the pending event for the given correlation id, reporting
// whether one existed. The heap entry is dropped lazily.
func (s *Scheduler) Cancel(id string) bool {
	ev, ok := s.pending[id]
	if !ok {
		return false
	}
	ev.canceled = true
	delete(s.pending, id)
	return true
}

// Step dispatches the next event, advancing simulated time to it. It
// returns false when the queue is drained.
func (s *Scheduler) Step() bool {
	for s.queue.Len() > 0 {
		ev := heap.Pop(&s.queue).(*event)
		if ev.canceled {
			continue
		}
		s.now = ev.at
		delete(s.pending, ev.id)
		s.fired++
		ev.fire(ev.at)
		return true
	}
	return false
}

// Run dispatches events until the queue is empty and returns the number of
// events fired.
func (s *Scheduler) Run() int {
	start := s.fired
	for s.Step() {
	}
	return s.fired - start
}

// eventHeap orders events by (time, insertion sequence).
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	ev := x.(*event)
	ev.index = len(*h)
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}
