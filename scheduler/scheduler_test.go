package scheduler

import (
	"errors"
	"testing"
	"time"
)

const ms = time.Millisecond

func TestSchedulerOrdering(t *testing.T) {
	s := New()
	var order []string

	record := func(id string) Callback {
		return func(time.Duration) { order = append(order, id) }
	}

	if err := s.Schedule("c", 30*ms, record("c")); err != nil {
		t.Fatalf("Schedule(c): %v", err)
	}
	if err := s.Schedule("a", 10*ms, record("a")); err != nil {
		t.Fatalf("Schedule(a): %v", err)
	}
	if err := s.Schedule("b", 20*ms, record("b")); err != nil {
		t.Fatalf("Schedule(b): %v", err)
	}

	if fired := s.Run(); fired != 3 {
		t.Fatalf("Run fired %d, want 3", fired)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("dispatch order = %v, want [a b c]", order)
	}
	if s.Now() != 30*ms {
		t.Fatalf("Now = %v, want 30ms", s.Now())
	}
}

func TestSchedulerSameTimeFIFO(t *testing.T) {
	s := New()
	var order []string

	for _, id := range []string{"first", "second", "third"} {
		id := id
		if err := s.Schedule(id, 5*ms, func(time.Duration) { order = append(order, id) }); err != nil {
			t.Fatalf("Schedule(%s): %v", id, err)
		}
	}

	s.Run()
	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("same-time order = %v, want insertion order", order)
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := New()
	fired := false

	if err := s.Schedule("x", 10*ms, func(time.Duration) { fired = true }); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !s.Cancel("x") {
		t.Fatal("Cancel reported no pending event")
	}
	if s.Cancel("x") {
		t.Fatal("second Cancel must report nothing pending")
	}

	s.Run()
	if fired {
		t.Fatal("canceled event fired")
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending = %d, want 0", s.Pending())
	}
}

func TestSchedulerReplaceSameID(t *testing.T) {
	s := New()
	var got []time.Duration

	record := func(at time.Duration) { got = append(got, at) }
	if err := s.Schedule("x", 10*ms, record); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Schedule("x", 25*ms, record); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	if fired := s.Run(); fired != 1 {
		t.Fatalf("Run fired %d, want 1 (replacement)", fired)
	}
	if len(got) != 1 || got[0] != 25*ms {
		t.Fatalf("fired at %v, want [25ms]", got)
	}
}

func TestSchedulerRejectsPastAndEmptyID(t *testing.T) {
	s := New()
	if err := s.Schedule("a", 10*ms, func(time.Duration) {}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	s.Step()

	if err := s.Schedule("b", 5*ms, func(time.Duration) {}); !errors.Is(err, ErrPastEvent) {
		t.Fatalf("past Schedule err = %v, want ErrPastEvent", err)
	}
	if err := s.Schedule("", 20*ms, func(time.Duration) {}); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("empty-id Schedule err = %v, want ErrEmptyID", err)
	}
}

func TestSchedulerScheduleFromCallback(t *testing.T) {
	s := New()
	var times []time.Duration

	if err := s.Schedule("chain", 10*ms, func(at time.Duration) {
		times = append(times, at)
		if err := s.Schedule("chain", at+10*ms, func(at time.Duration) {
			times = append(times, at)
		}); err != nil {
			t.Fatalf("nested Schedule: %v", err)
		}
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	s.Run()
	if len(times) != 2 || times[0] != 10*ms || times[1] != 20*ms {
		t.Fatalf("chained fires = %v, want [10ms 20ms]", times)
	}
	if s.Fired() != 2 {
		t.Fatalf("Fired = %d, want 2", s.Fired())
	}
}
