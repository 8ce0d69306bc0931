package socketio

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type frameCounts struct {
	state, position, queue int32
}

func newCountingCoalescer(interval time.Duration, c *frameCounts) *FrameCoalescer {
	return NewFrameCoalescer(interval,
		func() { atomic.AddInt32(&c.state, 1) },
		func() { atomic.AddInt32(&c.position, 1) },
		func() { atomic.AddInt32(&c.queue, 1) },
	)
}

func TestCoalescerRapidStateEventsCollapseToOne(t *testing.T) {
	var c frameCounts
	f := newCountingCoalescer(50*time.Millisecond, &c)
	defer f.Stop()

	for i := 0; i < 10; i++ {
		f.Trigger(FrameState)
	}

	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&c.state); got != 1 {
		t.Errorf("expected 1 state callback, got %d", got)
	}
	if got := atomic.LoadInt32(&c.position); got != 0 {
		t.Errorf("expected 0 position callbacks, got %d", got)
	}
	if got := atomic.LoadInt32(&c.queue); got != 0 {
		t.Errorf("expected 0 queue callbacks, got %d", got)
	}
}

func TestCoalescerSteadyPositionIsNotStarved(t *testing.T) {
	var c frameCounts
	f := newCountingCoalescer(20*time.Millisecond, &c)
	defer f.Stop()

	// A trigger every 5ms for 200ms would starve a debouncer that resets
	// its timer on every event.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		f.Trigger(FramePosition)
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	got := atomic.LoadInt32(&c.position)
	if got < 3 {
		t.Errorf("expected several position frames, got %d", got)
	}
	if got > 12 {
		t.Errorf("expected at most one frame per interval, got %d", got)
	}
}

func TestCoalescerQueueTriggersStateAndQueue(t *testing.T) {
	var c frameCounts
	f := newCountingCoalescer(30*time.Millisecond, &c)
	defer f.Stop()

	f.Trigger(FrameQueue)
	time.Sleep(80 * time.Millisecond)

	if got := atomic.LoadInt32(&c.queue); got != 1 {
		t.Errorf("expected 1 queue callback, got %d", got)
	}
	if got := atomic.LoadInt32(&c.state); got != 1 {
		t.Errorf("expected 1 state callback, got %d", got)
	}
}

func TestCoalescerQueueFlushesBeforeState(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	f := NewFrameCoalescer(20*time.Millisecond, record("state"), record("position"), record("queue"))
	defer f.Stop()

	f.Trigger(FramePosition)
	f.Trigger(FrameQueue)
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"queue", "state", "position"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}
}

func TestCoalescerUnknownKindIgnored(t *testing.T) {
	var c frameCounts
	f := newCountingCoalescer(20*time.Millisecond, &c)
	defer f.Stop()

	f.Trigger("mixer")
	time.Sleep(50 * time.Millisecond)

	if atomic.LoadInt32(&c.state)+atomic.LoadInt32(&c.position)+atomic.LoadInt32(&c.queue) != 0 {
		t.Error("unknown frame kind should not schedule a flush")
	}
}

func TestCoalescerStopCancelsPending(t *testing.T) {
	var c frameCounts
	f := newCountingCoalescer(50*time.Millisecond, &c)

	f.Trigger(FrameState)
	f.Trigger(FrameQueue)
	f.Stop()

	time.Sleep(100 * time.Millisecond)

	if atomic.LoadInt32(&c.state) != 0 || atomic.LoadInt32(&c.queue) != 0 {
		t.Error("Stop should cancel pending callbacks")
	}

	f.Trigger(FrameState)
	time.Sleep(80 * time.Millisecond)
	if atomic.LoadInt32(&c.state) != 0 {
		t.Error("Trigger after Stop should be a no-op")
	}
}
